package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"sync"
)

// File is an in-memory upload payload.
type File struct {
	Name string
	Data []byte
}

// ProgressObserver receives upload progress in percent.
type ProgressObserver interface {
	Progress(percent int)
}

// ProgressFunc adapts a plain function to ProgressObserver.
type ProgressFunc func(percent int)

func (f ProgressFunc) Progress(percent int) { f(percent) }

type noProgress struct{}

func (noProgress) Progress(int) {}

// NoProgress discards every tick.
var NoProgress ProgressObserver = noProgress{}

// Upload posts f as the multipart field "file". Observer ticks are strictly
// increasing and end at 100 when the exchange succeeds. A nil observer is
// treated as NoProgress.
func (c *Client) Upload(ctx context.Context, path string, f File, obs ProgressObserver, out any) error {
	if obs == nil {
		obs = NoProgress
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", f.Name)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return fmt.Errorf("writing form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	pr := &progressReader{
		r:     bytes.NewReader(buf.Bytes()),
		total: int64(buf.Len()),
		obs:   obs,
		last:  -1,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.ContentLength = pr.total
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.rt(req)
	if err != nil {
		return err
	}
	pr.finish()
	return decodeBody(resp, out)
}

// progressReader counts bytes as the transport consumes the request body.
// The transport may still be reading when the response arrives, hence the
// lock.
type progressReader struct {
	r     io.Reader
	total int64
	obs   ProgressObserver

	mu   sync.Mutex
	sent int64
	last int
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.sent += int64(n)
		p.report(percentOf(p.sent, p.total))
		p.mu.Unlock()
	}
	return n, err
}

func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report(100)
}

// report must be called with mu held.
func (p *progressReader) report(percent int) {
	if p.total <= 0 || percent <= p.last {
		return
	}
	p.last = percent
	p.obs.Progress(percent)
}

func percentOf(sent, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(sent) * 100 / float64(total)))
}
