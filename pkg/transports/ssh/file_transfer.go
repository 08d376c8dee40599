package ssh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/sftp"
)

// createSFTPClient opens an SFTP session on the current connection.
func (c *SSHClient) createSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}

	return sftpClient, nil
}

// UploadFile uploads a single file, skipping the transfer when the remote
// file already has the same content.
func (c *SSHClient) UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) (*FileTransferResult, error) {
	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	return c.uploadFile(ctx, sftpClient, localPath, remotePath, mode, false)
}

func (c *SSHClient) uploadFile(ctx context.Context, sftpClient *sftp.Client, localPath, remotePath string, mode uint32, force bool) (*FileTransferResult, error) {
	startTime := time.Now()

	checksum, size, err := localChecksum(localPath)
	if err != nil {
		return nil, &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to read local file: %w", err),
		}
	}

	result := &FileTransferResult{Checksum: checksum}

	if !force {
		if same, err := remoteMatches(sftpClient, remotePath, size, checksum); err == nil && same {
			result.Skipped = true
			result.Duration = time.Since(startTime)
			c.logger.Debug().Str("remote", remotePath).Msg("Remote file up to date")
			return result, nil
		}
	}

	localFile, err := os.Open(localPath)
	if err != nil {
		return nil, &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to open local file: %w", err),
		}
	}
	defer localFile.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return nil, &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create remote directory: %w", err),
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return nil, &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}

	written, copyErr := copyWithContext(ctx, remoteFile, localFile)
	closeErr := remoteFile.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return nil, &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to copy %s: %w", localPath, copyErr),
			IsTemporary: !errors.Is(copyErr, context.Canceled),
		}
	}

	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			c.logger.Warn().Err(err).Str("remote", remotePath).Msg("Failed to set file permissions")
		}
	}

	result.BytesTransferred = written
	result.Duration = time.Since(startTime)

	c.logger.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", result.Duration).
		Msg("File uploaded")

	return result, nil
}

// UploadTree uploads the files under localDir selected by opts into
// remoteDir, keeping their relative layout.
func (c *SSHClient) UploadTree(ctx context.Context, localDir string, remoteDir string, opts UploadOptions) (*UploadResult, error) {
	startTime := time.Now()

	files, err := selectFiles(localDir, opts)
	if err != nil {
		return nil, &TransportError{Op: "upload", Err: err}
	}

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	result := &UploadResult{}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		localPath := filepath.Join(localDir, filepath.FromSlash(rel))
		info, err := os.Stat(localPath)
		if err != nil {
			return result, &TransportError{Op: "upload", Err: err}
		}

		fr, err := c.uploadFile(ctx, sftpClient, localPath, path.Join(remoteDir, rel), uint32(info.Mode().Perm()), opts.Force)
		if err != nil {
			return result, err
		}
		if fr.Skipped {
			result.Skipped = append(result.Skipped, rel)
		} else {
			result.Uploaded = append(result.Uploaded, rel)
			result.BytesTransferred += fr.BytesTransferred
		}
	}

	if opts.DeleteExtraneous {
		deleted, err := deleteExtraneous(sftpClient, remoteDir, files)
		result.Deleted = deleted
		if err != nil {
			return result, &TransportError{Op: "upload", Err: err}
		}
	}

	result.Duration = time.Since(startTime)

	c.logger.Info().
		Str("local", localDir).
		Str("remote", remoteDir).
		Int("uploaded", len(result.Uploaded)).
		Int("skipped", len(result.Skipped)).
		Int("deleted", len(result.Deleted)).
		Int64("bytes", result.BytesTransferred).
		Dur("duration", result.Duration).
		Msg("Build tree uploaded")

	return result, nil
}

// selectFiles returns the slash-separated relative paths under root that
// match an include pattern and no exclude pattern, sorted.
func selectFiles(root string, opts UploadOptions) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	includes := opts.Include
	if len(includes) == 0 {
		includes = []string{"**"}
	}
	for _, pattern := range append(append([]string{}, includes...), opts.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern: %s", pattern)
		}
	}

	fsys := os.DirFS(root)
	selected := make(map[string]struct{})
	for _, pattern := range includes {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", pattern, err)
		}
		for _, m := range matches {
			selected[m] = struct{}{}
		}
	}

	files := make([]string, 0, len(selected))
	for rel := range selected {
		if excluded(rel, opts.Exclude) {
			continue
		}
		files = append(files, rel)
	}
	sort.Strings(files)

	return files, nil
}

func excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// deleteExtraneous removes remote files under remoteDir not in keep.
func deleteExtraneous(sftpClient *sftp.Client, remoteDir string, keep []string) ([]string, error) {
	wanted := make(map[string]struct{}, len(keep))
	for _, rel := range keep {
		wanted[rel] = struct{}{}
	}

	var deleted []string
	walker := sftpClient.Walk(remoteDir)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return deleted, err
		}
		if walker.Stat().IsDir() {
			continue
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), remoteDir), "/")
		if _, ok := wanted[rel]; ok {
			continue
		}
		if err := sftpClient.Remove(walker.Path()); err != nil {
			return deleted, fmt.Errorf("failed to remove %s: %w", walker.Path(), err)
		}
		deleted = append(deleted, rel)
	}

	sort.Strings(deleted)
	return deleted, nil
}

// remoteMatches reports whether remotePath exists with the given size and
// SHA256 checksum.
func remoteMatches(sftpClient *sftp.Client, remotePath string, size int64, checksum string) (bool, error) {
	info, err := sftpClient.Stat(remotePath)
	if err != nil {
		return false, err
	}
	if info.IsDir() || info.Size() != size {
		return false, nil
	}

	f, err := sftpClient.Open(remotePath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(hash.Sum(nil)) == checksum, nil
}

// localChecksum returns the SHA256 checksum and size of a local file.
func localChecksum(localPath string) (string, int64, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	hash := sha256.New()
	n, err := io.Copy(hash, file)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(hash.Sum(nil)), n, nil
}

// copyWithContext copies data from src to dst while respecting context cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}

	return written, nil
}
