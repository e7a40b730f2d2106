package detect

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"can-log-analyzer/internal/parse"
)

// Confidence indicates whether a format was positively identified or is the
// last-resort default.
type Confidence string

const (
	ConfidenceDefinite  Confidence = "definite"
	ConfidenceHeuristic Confidence = "heuristic"
)

// Result is the outcome of format detection.
type Result struct {
	Format     parse.Format
	Confidence Confidence
}

const (
	magicSampleSize   = 1024
	contentSampleSize = 10 * 1024
)

// extensionMap resolves unambiguous extensions directly. Generic text-ish
// extensions require content confirmation before the hint is trusted.
var extensionMap = map[string]parse.Format{
	".asc":    parse.FormatASC,
	".blf":    parse.FormatBLF,
	".trc":    parse.FormatTRC,
	".log":    parse.FormatCANLog,
	".txt":    parse.FormatCANLog,
	".lin":    parse.FormatLIN,
	".ldf":    parse.FormatLIN,
	".uds":    parse.FormatUDS,
	".pcap":   parse.FormatPCAP,
	".pcapng": parse.FormatPCAP,
	".dbc":    parse.FormatDBC,
	".csv":    parse.FormatCSV,
	".xml":    parse.FormatXML,
	".dat":    parse.FormatINCADat,
	".mdf":    parse.FormatINCAMDF,
}

var ambiguousExtensions = map[string]bool{
	".csv": true, ".xml": true, ".txt": true, ".log": true,
}

// contentPatterns disambiguate text dialects from a 10KB sample, in fixed
// precedence order. J1939-shaped lines are a CAN variant and map to the
// generic family.
var contentPatterns = []struct {
	re     *regexp.Regexp
	format parse.Format
}{
	{regexp.MustCompile(`\(\d+\.\d+\)\s+\w+\s+[0-9A-Fa-f]+#[0-9A-Fa-f]+`), parse.FormatCANLog},
	{regexp.MustCompile(`(?m)^\s*\d+\.\d+\s+\d+\s+[0-9A-Fa-fx]+\s+(Rx|Tx)\s+d\s+\d+`), parse.FormatASC},
	{regexp.MustCompile(`18[0-9A-F]{6}#[0-9A-F]+`), parse.FormatCANLog},
	{regexp.MustCompile(`(?m)^UDS\s+\d+\.\d+`), parse.FormatUDS},
	{regexp.MustCompile(`(?m)^LIN\s+\d+\.\d+`), parse.FormatLIN},
}

var (
	vendorCANalyzer = regexp.MustCompile(`CANalyzer|CANoe|Vector`)
	vendorINCA      = regexp.MustCompile(`INCA|ETAS`)
)

// Detector resolves a file path to a dialect tag through a fixed precedence
// chain: extension, magic bytes, content patterns, trial parse, and finally
// the generic CAN text default. Detection never blocks ingestion.
type Detector struct {
	registry *parse.Registry
	log      *zap.SugaredLogger
}

// New builds a detector over an explicitly constructed parser registry.
func New(registry *parse.Registry, log *zap.SugaredLogger) *Detector {
	return &Detector{registry: registry, log: log}
}

// Detect identifies the dialect of the file at path. The only error is an
// unreadable file, which is fatal for that file alone.
func (d *Detector) Detect(path string) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, errors.Wrapf(err, "failed to stat %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if hint, ok := extensionMap[ext]; ok {
		if ambiguousExtensions[ext] {
			if format, ok := d.detectByContent(path, ext); ok {
				return Result{Format: format, Confidence: ConfidenceDefinite}, nil
			}
		}
		return Result{Format: hint, Confidence: ConfidenceDefinite}, nil
	}

	if format, ok := d.detectByMagic(path); ok {
		return Result{Format: format, Confidence: ConfidenceDefinite}, nil
	}
	if format, ok := d.detectByContent(path, ext); ok {
		return Result{Format: format, Confidence: ConfidenceDefinite}, nil
	}
	if format, ok := d.detectByTrialParse(path); ok {
		return Result{Format: format, Confidence: ConfidenceDefinite}, nil
	}

	d.log.Warnw("could not detect format, defaulting to generic CAN text",
		"path", path)
	return Result{Format: parse.FormatCANLog, Confidence: ConfidenceHeuristic}, nil
}

// Parser returns the parser for a detection result.
func (d *Detector) Parser(r Result) parse.Parser {
	return d.registry.Get(r.Format)
}

func (d *Detector) detectByMagic(path string) (parse.Format, bool) {
	f, err := os.Open(path)
	if err != nil {
		d.log.Errorw("failed to read file header", "path", path, "error", err)
		return "", false
	}
	defer f.Close()

	header := make([]byte, magicSampleSize)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return "", false
	}
	header = header[:n]

	for format, magics := range parse.ContainerMagics {
		for _, magic := range magics {
			if bytes.HasPrefix(header, magic) {
				return format, true
			}
		}
	}
	if bytes.HasPrefix(header, []byte("date")) {
		return parse.FormatASC, true
	}
	if bytes.HasPrefix(header, []byte("<?xml")) {
		return d.detectXMLFormat(path), true
	}
	return "", false
}

// detectXMLFormat narrows an XML file to a vendor export by its root element
// and a keyword scan of the sample.
func (d *Detector) detectXMLFormat(path string) parse.Format {
	sample, err := readSample(path, contentSampleSize)
	if err != nil {
		return parse.FormatXML
	}

	dec := xml.NewDecoder(bytes.NewReader(sample))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if start, ok := tok.(xml.StartElement); ok {
			if vendorCANalyzer.MatchString(start.Name.Local) {
				return parse.FormatCANalyzerXML
			}
			break // only the root element is structural evidence
		}
	}
	if vendorCANalyzer.Match(sample) {
		return parse.FormatCANalyzerXML
	}
	if vendorINCA.Match(sample) {
		return parse.FormatINCADat
	}
	return parse.FormatXML
}

func (d *Detector) detectByContent(path, ext string) (parse.Format, bool) {
	sample, err := readSample(path, contentSampleSize)
	if err != nil {
		d.log.Errorw("failed to sample file content", "path", path, "error", err)
		return "", false
	}

	for _, p := range contentPatterns {
		if p.re.Match(sample) {
			return p.format, true
		}
	}
	if vendorCANalyzer.Match(sample) {
		if ext == ".csv" {
			return parse.FormatCANalyzerCSV, true
		}
		return parse.FormatCANalyzerXML, true
	}
	if vendorINCA.Match(sample) {
		if ext == ".mdf" {
			return parse.FormatINCAMDF, true
		}
		return parse.FormatINCADat, true
	}
	return "", false
}

func (d *Detector) detectByTrialParse(path string) (parse.Format, bool) {
	for _, p := range d.registry.Trial() {
		if p.Validate(path) {
			return p.Format(), true
		}
	}
	return "", false
}

func readSample(path string, size int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sample := make([]byte, size)
	n, err := f.Read(sample)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return sample[:n], nil
}
