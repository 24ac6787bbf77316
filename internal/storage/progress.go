package storage

import "io"

// ProgressReader 包装上传流，按读取字节数回调进度
type ProgressReader struct {
	reader io.Reader
	read   int64
	onRead func(read int64)
}

// NewProgressReader 创建进度统计Reader
func NewProgressReader(r io.Reader, onRead func(read int64)) *ProgressReader {
	return &ProgressReader{reader: r, onRead: onRead}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.onRead != nil {
			p.onRead(p.read)
		}
	}
	return n, err
}
