package vfs

import "io"

// ReadAll opens the file for reading and returns its entire contents.
func ReadAll(fsys FileSystem, path Path) ([]byte, error) {
	stream, err := fsys.Open(path, ModeOpen, ReadAccess, ShareRead)
	if err != nil {
		return nil, err
	}
	defer silentClose(stream)
	buf := make([]byte, 0, stream.Length())
	tmp := make([]byte, 32*1024)
	for {
		n, err := stream.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
}

// WriteAll creates or truncates the file, writes data and returns the number of bytes
// written. Missing parent directories are not created, use MkDirs first.
func WriteAll(fsys FileSystem, path Path, data []byte) (int, error) {
	stream, err := fsys.Open(path, ModeCreate, WriteAccess, ShareNone)
	if err != nil {
		return 0, err
	}
	n, err := stream.Write(data)
	if closeErr := stream.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// CopyPath copies one file from src to dst. It returns the number of copied bytes.
func CopyPath(dst FileSystem, dstPath Path, src FileSystem, srcPath Path) (int64, error) {
	in, err := src.Open(srcPath, ModeOpen, ReadAccess, ShareRead)
	if err != nil {
		return 0, err
	}
	defer silentClose(in)
	out, err := dst.Open(dstPath, ModeCreate, WriteAccess, ShareNone)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return written, err
}

// Walk calls fn for every entry below root, depth first, parents before their
// children. Returning an error from fn aborts the walk and is returned as is.
func Walk(fsys FileSystem, root Path, fn func(entry Entry) error) error {
	entries, err := fsys.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := fn(entry); err != nil {
			return err
		}
		if entry.IsDir() {
			if err := Walk(fsys, entry.Path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func silentClose(c io.Closer) {
	if err := c.Close(); err != nil {
		debugf("close failed: %v", err)
	}
}
