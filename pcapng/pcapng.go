// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package pcapng

import (
	"bytes"
	"encoding/binary"
	"errors"
	"regexp"
	"strings"

	"github.com/siemens/kcap"
	"github.com/siemens/kcap/api"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// targetmarker describes the "magic" signature of a capture target YAML
	// document.
	targetmarker = "---\n# capture target information\n"

	shbBlockType = 0x0a0d0d0a
	shbFixedLen  = 24 // block type, length, byte-order magic, version, section length
	shbMinLen    = shbFixedLen + 4
	// Upper bound on the section header block size we're willing to buffer.
	shbMaxLen = 1 << 20
)

var (
	// markerstart matches the first capture target YAML document.
	markerstart = regexp.MustCompile(`(?s)(^|\n)` + targetmarker)
	// markerend matches an optional YAML end/next document marker.
	markerend = regexp.MustCompile(`(?s)\n---($|\n)`)

	byteOrderMagic = []byte{0x1a, 0x2b, 0x3c, 0x4d}
)

// TargetInfo is the capture target information added as YAML to the comment
// of the first section header block.
type TargetInfo struct {
	Target        string   `yaml:"target"`
	TargetType    string   `yaml:"target-type"`
	Namespace     string   `yaml:"namespace,omitempty"`
	Container     string   `yaml:"container,omitempty"`
	NodeName      string   `yaml:"node-name,omitempty"`
	Transport     string   `yaml:"transport"`
	Hops          []string `yaml:"jump-hosts,omitempty"`
	Interface     string   `yaml:"interface,omitempty"`
	CaptureFilter string   `yaml:"capture-filter,omitempty"`
	Tool          string   `yaml:"capture-tool,omitempty"`
}

// NewTargetInfo returns the target information for a capture of the
// described target using the specified capture spec.
func NewTargetInfo(target *api.Target, spec kcap.CaptureSpec) TargetInfo {
	if target == nil {
		target = &api.Target{}
	}
	spec = spec.WithDefaults()
	return TargetInfo{
		Target:        target.Name,
		TargetType:    target.Type,
		Namespace:     target.Namespace,
		Container:     target.Container,
		NodeName:      target.NodeName,
		Transport:     target.Transport,
		Hops:          target.Hops,
		Interface:     spec.Interface,
		CaptureFilter: kcap.BuildFilter(spec.Protocol, spec.Port, spec.Filter),
		Tool:          string(spec.CaptureTool()),
	}
}

// Annotator is an output sink adding capture target information to the first
// section header block (SHB) of a pcapng stream, before passing the stream on
// to the wrapped sink. Everything after the first SHB passes unmodified.
type Annotator struct {
	sink        kcap.OutputSink
	info        TargetInfo
	endian      binary.ByteOrder
	held        []byte
	shbLen      uint32
	passThrough bool
}

var _ kcap.OutputSink = (*Annotator)(nil)

// NewAnnotator returns a pcapng annotating sink in front of sink.
func NewAnnotator(sink kcap.OutputSink, info TargetInfo) *Annotator {
	return &Annotator{sink: sink, info: info}
}

// Write collects the first SHB of the stream, passing on its annotated
// version once complete. Afterwards, writes are forwarded as-is.
func (a *Annotator) Write(b []byte) (int, error) {
	if a.passThrough {
		return a.sink.Write(b)
	}
	n := len(b)
	a.held = append(a.held, b...)
	out, ready := a.collect()
	if !ready {
		// Still waiting for more of the SHB; report the full amount anyway, or
		// the caller will consider this a short write.
		return n, nil
	}
	if _, err := a.sink.Write(out); err != nil {
		log.Debugf("pcapng stream broken: %s", err.Error())
		return 0, err
	}
	return n, nil
}

// collect returns the octets to pass on, once the first SHB is complete or
// the stream turns out not to be annotatable.
func (a *Annotator) collect() ([]byte, bool) {
	if a.shbLen == 0 {
		if len(a.held) < 12 {
			return nil, false
		}
		if err := a.decodeBlockLen(); err != nil {
			log.Warnf("not annotating packet capture: %s", err.Error())
			return a.release(a.held), true
		}
	}
	if uint32(len(a.held)) < a.shbLen {
		return nil, false
	}
	shb, err := a.annotate(a.held[:a.shbLen])
	if err != nil {
		log.Warnf("not annotating packet capture: %s", err.Error())
		return a.release(a.held), true
	}
	return a.release(append(shb, a.held[a.shbLen:]...)), true
}

// release switches into pass-through mode and returns b.
func (a *Annotator) release(b []byte) []byte {
	a.passThrough = true
	a.held = nil
	return b
}

// decodeBlockLen determines the byte order of the section from its
// byte-order magic and then decodes the SHB's total block length.
func (a *Annotator) decodeBlockLen() error {
	if binary.BigEndian.Uint32(a.held[0:4]) != shbBlockType {
		return errors.New("stream doesn't start with a section header block")
	}
	switch {
	case bytes.Equal(a.held[8:12], byteOrderMagic):
		a.endian = binary.BigEndian
	case binary.LittleEndian.Uint32(a.held[8:12]) == 0x1a2b3c4d:
		a.endian = binary.LittleEndian
	default:
		return errors.New("invalid byte-order magic")
	}
	a.shbLen = a.endian.Uint32(a.held[4:8])
	if a.shbLen < shbMinLen || a.shbLen > shbMaxLen || a.shbLen%4 != 0 {
		return errors.New("invalid section header block length")
	}
	log.Debugf("section header block: %s, %d octets", a.endian, a.shbLen)
	return nil
}

// annotate returns the SHB with its first comment option updated with the
// target information, or with a new comment option in front when there
// wasn't any comment yet. All other options are kept as they are.
func (a *Annotator) annotate(shb []byte) ([]byte, error) {
	opts, err := ParseOptions(shb[shbFixedLen:len(shb)-4], a.endian)
	if err != nil {
		return nil, err
	}
	comment := ""
	kept := make([]Option, 0, len(opts))
	found := false
	for _, opt := range opts {
		if opt.Code == OptComment && !found {
			found = true
			comment = stripTargetInfo(opt.String())
			continue
		}
		kept = append(kept, opt)
	}
	if comment != "" && !strings.HasSuffix(comment, "\n") {
		comment += "\n"
	}
	y, err := yaml.Marshal(a.info)
	if err != nil {
		return nil, err
	}
	comment += targetmarker + string(y)
	opts = append([]Option{{Code: OptComment, Value: []byte(comment)}}, kept...)

	var body bytes.Buffer
	for _, opt := range opts {
		body.Write(opt.Bytes(a.endian))
	}
	body.Write(endOfOptions)
	newLen := uint32(shbFixedLen + body.Len() + 4)
	out := make([]byte, newLen)
	a.endian.PutUint32(out[0:4], shbBlockType)
	a.endian.PutUint32(out[4:8], newLen)
	copy(out[8:shbFixedLen], shb[8:shbFixedLen]) // magic, version, section length
	copy(out[shbFixedLen:], body.Bytes())
	a.endian.PutUint32(out[newLen-4:], newLen)
	log.Debugf("annotated section header block, %d octets", newLen)
	return out, nil
}

// stripTargetInfo removes an existing capture target YAML document from the
// comment, keeping any other comment text and YAML documents.
func stripTargetInfo(comment string) string {
	start := markerstart.FindStringIndex(comment)
	if start == nil {
		return comment
	}
	if comment[start[0]] == '\n' {
		start[0]++
	}
	end := markerend.FindStringIndex(comment[start[1]:])
	if end == nil {
		return comment[:start[0]]
	}
	// Keep the following YAML document, including its separator.
	return comment[:start[0]] + comment[start[1]+end[0]+1:]
}

// Close passes on any octets still held back, because the stream ended
// before its first SHB was complete, and then closes the wrapped sink.
func (a *Annotator) Close() error {
	if !a.passThrough && len(a.held) > 0 {
		if _, err := a.sink.Write(a.release(a.held)); err != nil {
			a.sink.Close()
			return err
		}
	}
	return a.sink.Close()
}

func (a *Annotator) String() string { return a.sink.String() }
