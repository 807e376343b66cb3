package sensors

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/relabs-tech/motion_trainer/internal/motion"
)

// serialSource reads samples from a serial-attached microcontroller
// that streams one "x,y,z" CSV line per reading.
type serialSource struct {
	log    *zap.Logger
	port   io.ReadWriteCloser
	reader *bufio.Reader
}

// NewSerialSource opens the serial port and returns a Source reading
// CSV sample lines from it.
func NewSerialSource(portName string, baudRate int, log *zap.Logger) (Source, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial source: open %s: %w", portName, err)
	}
	log.Info("[sensors] serial port opened",
		zap.String("port", portName), zap.Int("baud", baudRate))

	return &serialSource{
		log:    log,
		port:   port,
		reader: bufio.NewReader(port),
	}, nil
}

// Next blocks until a parseable sample line arrives. Partial or garbled
// lines (common right after opening the port) are skipped.
func (s *serialSource) Next() (motion.Sample, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return motion.Sample{}, fmt.Errorf("serial source: read: %w", err)
		}

		sample, err := parseSampleLine(line)
		if err != nil {
			s.log.Debug("[sensors] skipping unparseable line",
				zap.String("line", strings.TrimSpace(line)))
			continue
		}
		return sample, nil
	}
}

func (s *serialSource) Close() error {
	return s.port.Close()
}

// parseSampleLine parses one "x,y,z" CSV line into a Sample.
func parseSampleLine(line string) (motion.Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return motion.Sample{}, fmt.Errorf("empty line")
	}

	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return motion.Sample{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}

	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return motion.Sample{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}

	return motion.Sample{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
