package parse

import (
	"bufio"
	"iter"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"can-log-analyzer/internal/models"
)

// Format tags a log dialect. Detection may yield tags without a dedicated
// parser (vendor tool exports); Get falls back for those.
type Format string

const (
	FormatCANLog       Format = "can_log"
	FormatASC          Format = "can_asc"
	FormatTRC          Format = "can_trc"
	FormatBLF          Format = "can_blf"
	FormatLIN          Format = "lin"
	FormatUDS          Format = "uds"
	FormatPCAP         Format = "pcap"
	FormatDBC          Format = "dbc"
	FormatCANalyzerXML Format = "canalyzer_xml"
	FormatCANalyzerCSV Format = "canalyzer_csv"
	FormatINCADat      Format = "inca_dat"
	FormatINCAMDF      Format = "inca_mdf"
	FormatXML          Format = "xml"
	FormatCSV          Format = "csv"
)

// DefaultChunkSize is the batch size used when callers pass zero.
const DefaultChunkSize = 10000

// Parser is implemented once per supported dialect.
//
// Parse streams the file and hands ownership of each emitted batch to the
// consumer; abandoning the iteration stops the read without cleanup beyond
// closing the file. Lines that fail the dialect grammar are counted and
// skipped, never abort the parse; the count is logged at completion.
type Parser interface {
	Format() Format
	Validate(path string) bool
	Parse(path string, chunkSize int) iter.Seq2[[]models.Frame, error]
	Stats(path string) (models.FileStats, error)
}

// Registry holds the constructed parser set. It is built once and passed to
// the format detector; there is no package-level registry.
type Registry struct {
	parsers map[Format]Parser
	trial   []Format
	log     *zap.SugaredLogger
}

// NewRegistry constructs all dialect parsers.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	r := &Registry{parsers: make(map[Format]Parser), log: log}

	canlog := NewCANLogParser(log)
	for _, p := range []Parser{
		canlog,
		NewASCParser(log),
		NewLINParser(log),
		NewUDSParser(log),
		NewBLFParser(log),
		NewPCAPParser(log),
	} {
		r.parsers[p.Format()] = p
	}
	// PCAN TRC traces share the generic CAN text grammar family.
	r.parsers[FormatTRC] = canlog

	// Trial-parse priority for inconclusive detection.
	r.trial = []Format{FormatCANLog, FormatASC, FormatBLF, FormatLIN, FormatUDS}
	return r
}

// Get returns the parser for a format. Unknown or vendor formats fall back
// to the generic CAN text parser so that detection failure never blocks
// ingestion.
func (r *Registry) Get(format Format) Parser {
	if p, ok := r.parsers[format]; ok {
		return p
	}
	if !strings.Contains(string(format), "can") {
		r.log.Warnw("no dedicated parser for format, using generic CAN text parser",
			"format", format)
	}
	return r.parsers[FormatCANLog]
}

// Trial returns the parsers to probe, in fixed priority order.
func (r *Registry) Trial() []Parser {
	out := make([]Parser, 0, len(r.trial))
	for _, f := range r.trial {
		out = append(out, r.parsers[f])
	}
	return out
}

// lineFunc parses one trimmed, non-blank line. ok=false means the line does
// not match the dialect grammar.
type lineFunc func(line string) (models.Frame, bool)

// textParser implements Parser for line-oriented dialects. Each dialect
// supplies only its grammar via parseLine.
type textParser struct {
	format    Format
	parseLine lineFunc
	log       *zap.SugaredLogger
}

func (p *textParser) Format() Format { return p.format }

func (p *textParser) Validate(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	// Only candidate lines count against the sniff budget: blank lines,
	// comments and header lines are skipped the same way streamText does, so
	// a long preamble cannot exhaust the probe.
	sc := bufio.NewScanner(f)
	candidates := 0
	for candidates < 10 && sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if _, ok := p.parseLine(line); ok {
			return true
		}
		if !isHeaderLine(line) {
			candidates++
		}
	}
	return false
}

func (p *textParser) Parse(path string, chunkSize int) iter.Seq2[[]models.Frame, error] {
	return streamText(path, chunkSize, p.parseLine, func(total, skipped uint64) {
		if skipped > 0 {
			p.log.Infow("parse finished with unrecognized lines",
				"path", path, "format", p.format, "lines", total, "skipped", skipped)
		}
	})
}

func (p *textParser) Stats(path string) (models.FileStats, error) {
	var skippedLines uint64
	seq := streamText(path, DefaultChunkSize, p.parseLine, func(total, skipped uint64) {
		skippedLines = skipped
	})
	stats, err := collectStats(path, seq)
	stats.SkippedLines = skippedLines
	return stats, err
}

// streamText drives the shared read loop: blank lines, comments and header
// lines are skipped silently, grammar mismatches are counted, and frames are
// emitted in batches of at most chunkSize. The batch slice is handed off on
// each yield and never reused.
func streamText(path string, chunkSize int, parseLine lineFunc, done func(total, skipped uint64)) iter.Seq2[[]models.Frame, error] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return func(yield func([]models.Frame, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, errors.Wrapf(err, "failed to open %s", path))
			return
		}
		defer f.Close()

		var total, skipped uint64
		batch := make([]models.Frame, 0, chunkSize)

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			total++
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
				continue
			}

			frame, ok := parseLine(line)
			if !ok {
				if !isHeaderLine(line) {
					skipped++
				}
				continue
			}

			batch = append(batch, frame)
			if len(batch) >= chunkSize {
				if !yield(batch, nil) {
					return
				}
				batch = make([]models.Frame, 0, chunkSize)
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, errors.Wrapf(err, "failed to read %s", path))
			return
		}
		if len(batch) > 0 {
			if !yield(batch, nil) {
				return
			}
		}
		if done != nil {
			done(total, skipped)
		}
	}
}

var headerTokens = []string{"time", "message", "dlc", "channel", "date", "base ", "version"}

// isHeaderLine reports whether a non-frame line looks like a column header
// or file preamble rather than a malformed record.
func isHeaderLine(line string) bool {
	l := strings.ToLower(line)
	for _, tok := range headerTokens {
		if strings.Contains(l, tok) {
			return true
		}
	}
	return false
}
