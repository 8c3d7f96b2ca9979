package capture

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// ImagePrefix marks an image line on the aggregator stream.
const ImagePrefix = "IMAGE:"

// Ack is the aggregator's reply to an image line.
type Ack struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Uploader delivers a captured image.
type Uploader interface {
	Upload(ctx context.Context, img Image) (Ack, error)
}

// StreamUploader sends IMAGE:<base64> on a short-lived TCP connection and
// waits for a single JSON acknowledgement line.
type StreamUploader struct {
	Addr    string
	Timeout time.Duration
}

// NewStreamUploader creates an uploader for host:port.
func NewStreamUploader(addr string, timeout time.Duration) *StreamUploader {
	return &StreamUploader{Addr: addr, Timeout: timeout}
}

// EncodeImageLine returns the newline-terminated stream form of data.
func EncodeImageLine(data []byte) []byte {
	n := len(ImagePrefix) + base64.StdEncoding.EncodedLen(len(data)) + 1
	b := make([]byte, len(ImagePrefix), n)
	copy(b, ImagePrefix)
	b = base64.StdEncoding.AppendEncode(b, data)
	return append(b, '\n')
}

func (u *StreamUploader) Upload(ctx context.Context, img Image) (Ack, error) {
	if u.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.Timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Addr)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to connect to %s: %w", u.Addr, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(dl); err != nil {
			return Ack{}, err
		}
	}

	if _, err := conn.Write(EncodeImageLine(img.Data)); err != nil {
		return Ack{}, fmt.Errorf("failed to send image: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return Ack{}, fmt.Errorf("failed to read acknowledgement: %w", err)
	}
	var ack Ack
	if err := json.Unmarshal(line, &ack); err != nil {
		return Ack{}, fmt.Errorf("invalid acknowledgement %q: %w", line, err)
	}
	if ack.Status != "success" {
		return ack, fmt.Errorf("aggregator rejected image: %s", ack.Message)
	}
	return ack, nil
}
