package engine

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// progressParser 解析 ffmpeg -progress 输出的 key=value 行
type progressParser struct {
	duration time.Duration
	report   func(fraction float64)
	last     float64
}

func newProgressParser(duration time.Duration, report func(float64)) *progressParser {
	if report == nil {
		report = func(float64) {}
	}
	return &progressParser{duration: duration, report: report}
}

// consume 读取直到 EOF
func (p *progressParser) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.parseLine(scanner.Text())
	}
	return scanner.Err()
}

func (p *progressParser) parseLine(line string) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return
	}

	switch key {
	// ffmpeg 的 out_time_ms 实际单位也是微秒
	case "out_time_us", "out_time_ms":
		if p.duration <= 0 {
			return
		}
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return
		}
		p.emit(float64(us) / float64(p.duration.Microseconds()))
	case "progress":
		if strings.TrimSpace(value) == "end" {
			p.emit(1)
		}
	}
}

// emit 保证上报值单调不减且不超过 1
func (p *progressParser) emit(fraction float64) {
	fraction = min(fraction, 1)
	if fraction <= p.last {
		return
	}
	p.last = fraction
	p.report(fraction)
}

// tailBuffer 只保留最后 limit 个字节，用于错误信息
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
