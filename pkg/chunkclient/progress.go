package chunkclient

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
)

const (
	progressBarWidth     = 32
	progressRenderPeriod = 120 * time.Millisecond
)

// progressBar рисует ASCII-индикатор отправленных страниц. nil-writer отключает вывод.
type progressBar struct {
	out           io.Writer
	prefix        string
	total         int
	pages         int
	bytes         int64
	lastRender    time.Time
	lastLineWidth int
	finished      bool
	mu            sync.Mutex
}

func newProgressBar(out io.Writer, prefix string, total int) *progressBar {
	return &progressBar{
		out:    out,
		prefix: prefix,
		total:  total,
	}
}

// Add отмечает отправленную страницу размером n байт.
func (p *progressBar) Add(n int) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.pages++
	p.bytes += int64(n)
	p.mu.Unlock()
	p.render(false)
}

func (p *progressBar) render(force bool) {
	if p.out == nil {
		return
	}
	p.mu.Lock()
	now := time.Now()
	if p.finished || (!force && now.Sub(p.lastRender) < progressRenderPeriod) {
		p.mu.Unlock()
		return
	}
	line := p.lineLocked()
	padding := p.paddingLocked(len(line))
	p.lastRender = now
	p.mu.Unlock()

	fmt.Fprintf(p.out, "\r%s%s", line, padding)
}

func (p *progressBar) lineLocked() string {
	ratio := float64(1)
	if p.total > 0 {
		ratio = min(float64(p.pages)/float64(p.total), 1)
	}
	filled := min(int(ratio*progressBarWidth+0.5), progressBarWidth)

	var b strings.Builder
	b.WriteString(p.prefix)
	b.WriteString(" [")
	b.WriteString(strings.Repeat("=", filled))
	b.WriteString(strings.Repeat(" ", progressBarWidth-filled))
	fmt.Fprintf(&b, "] %3d%% %d/%d pages, %s", int(ratio*100+0.5), p.pages, p.total, units.HumanSize(float64(p.bytes)))

	return b.String()
}

func (p *progressBar) paddingLocked(width int) string {
	prev := p.lastLineWidth
	p.lastLineWidth = width
	if prev > width {
		return strings.Repeat(" ", prev-width)
	}
	return ""
}

func (p *progressBar) Finish() {
	p.complete(" ✓")
}

func (p *progressBar) Fail(err error) {
	p.complete(fmt.Sprintf(" ✗ %v", err))
}

func (p *progressBar) complete(suffix string) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.finished = true
	if p.out == nil {
		p.mu.Unlock()
		return
	}
	line := p.lineLocked() + suffix
	padding := p.paddingLocked(len(line))
	p.mu.Unlock()

	fmt.Fprintf(p.out, "\r%s%s\n", line, padding)
}
