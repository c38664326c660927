package control

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-speech/internal/speech"
)

// DeviceReader feeds the speech queue from a line-oriented character
// device or FIFO, the attachment point for a local screen reader. The
// device is opened read-write: on a FIFO that keeps Open from blocking
// until a writer appears and keeps the reader alive across writers
// detaching.
type DeviceReader struct {
	path    string
	speaker *speech.Speaker
	logger  *slog.Logger

	mu   sync.Mutex
	file *os.File
	wg   sync.WaitGroup
}

func NewDeviceReader(path string, speaker *speech.Speaker, log *slog.Logger) *DeviceReader {
	return &DeviceReader{
		path:    path,
		speaker: speaker,
		logger:  log.With(slog.String("component", "control-device")),
	}
}

// Start opens the device and begins dispatching lines. With no path
// configured the reader stays disabled.
func (d *DeviceReader) Start() error {
	if d.path == "" {
		return nil
	}
	file, err := os.OpenFile(d.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open control device: %w", err)
	}
	d.mu.Lock()
	d.file = file
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(file)
	d.logger.Info("control device attached", slog.String("path", d.path))
	return nil
}

// Close detaches from the device. Closing the file unblocks the
// reader goroutine's pending read.
func (d *DeviceReader) Close() {
	d.mu.Lock()
	file := d.file
	d.file = nil
	d.mu.Unlock()
	if file != nil {
		_ = file.Close()
	}
	d.wg.Wait()
}

func (d *DeviceReader) run(file *os.File) {
	defer d.wg.Done()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d.dispatch(line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		d.logger.Warn("control device read failed", slogError(err))
	}
}

// dispatch runs one parsed line against the speaker. Parse errors are
// logged and the line skipped; a stop blocks the reader until the
// worker has acknowledged it, which matches the serial nature of the
// device protocol.
func (d *DeviceReader) dispatch(line string) {
	cmd, stop, err := ParseLine(line)
	if err != nil {
		d.logger.Warn("bad control line", slog.String("line", line), slogError(err))
		return
	}
	if stop {
		d.speaker.RequestStop()
		return
	}
	if err := d.speaker.Enqueue(cmd); err != nil {
		d.logger.Warn("failed to queue device command", slogError(err))
	}
}
