package report

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/raven-betanet/elf-inspector/internal/checks"
	"github.com/raven-betanet/elf-inspector/internal/elfparse"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is the JSON shape of an inspection: the decoded image with
// enumerations spelled out, plus the check report when checks ran.
type Document struct {
	Path     string              `json:"path"`
	FileSize int64               `json:"file_size"`
	State    string              `json:"state"`
	Ident    *IdentView          `json:"ident,omitempty"`
	Header   *HeaderView         `json:"header,omitempty"`
	Segments []SegmentView       `json:"segments"`
	Sections []SectionView       `json:"sections"`
	Warnings []ErrorView         `json:"warnings"`
	Error    *ErrorView          `json:"error,omitempty"`
	Checks   *checks.CheckReport `json:"checks,omitempty"`
}

type IdentView struct {
	Class      string `json:"class"`
	Data       string `json:"data"`
	Version    uint8  `json:"version"`
	OSABI      uint8  `json:"os_abi"`
	ABIVersion uint8  `json:"abi_version"`
}

type HeaderView struct {
	Type       string `json:"type"`
	TypeValue  uint16 `json:"type_value"`
	Machine    string `json:"machine"`
	MachineID  uint16 `json:"machine_value"`
	Version    uint32 `json:"version"`
	Entry      string `json:"entry"`
	PhOff      uint64 `json:"phoff"`
	ShOff      uint64 `json:"shoff"`
	Flags      uint32 `json:"flags"`
	HeaderSize uint16 `json:"ehsize"`
	PhEntSize  uint16 `json:"phentsize"`
	PhNum      uint16 `json:"phnum"`
	ShEntSize  uint16 `json:"shentsize"`
	ShNum      uint16 `json:"shnum"`
	ShStrNdx   uint16 `json:"shstrndx"`
}

type SegmentView struct {
	Type     string `json:"type"`
	Flags    string `json:"flags"`
	Offset   uint64 `json:"offset"`
	VAddr    string `json:"vaddr"`
	PAddr    string `json:"paddr"`
	FileSize uint64 `json:"filesz"`
	MemSize  uint64 `json:"memsz"`
	Align    uint64 `json:"align"`
}

type SectionView struct {
	Name         string `json:"name"`
	NameResolved bool   `json:"name_resolved"`
	NameOffset   uint32 `json:"name_offset"`
	Type         string `json:"type"`
	Flags        uint64 `json:"flags"`
	Addr         string `json:"addr"`
	Offset       uint64 `json:"offset"`
	Size         uint64 `json:"size"`
	Link         uint32 `json:"link"`
	Info         uint32 `json:"info"`
	AddrAlign    uint64 `json:"addralign"`
	EntSize      uint64 `json:"entsize"`
}

type ErrorView struct {
	Stage       string `json:"stage"`
	Index       int    `json:"index"`
	Offset      uint64 `json:"offset"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// NewDocument builds the JSON view of img. report may be nil.
func NewDocument(path string, img *elfparse.Image, report *checks.CheckReport) *Document {
	doc := &Document{
		Path:     path,
		FileSize: img.FileSize,
		State:    img.State.String(),
		Segments: make([]SegmentView, 0, len(img.Segments)),
		Sections: make([]SectionView, 0, len(img.Sections)),
		Warnings: make([]ErrorView, 0, len(img.Warnings)),
		Checks:   report,
	}
	if id := img.Ident; id != nil {
		doc.Ident = &IdentView{
			Class:      id.Class.String(),
			Data:       id.Data.String(),
			Version:    id.Version,
			OSABI:      id.OSABI,
			ABIVersion: id.ABIVersion,
		}
	}
	if hdr := img.Header; hdr != nil {
		doc.Header = &HeaderView{
			Type:       hdr.Type.String(),
			TypeValue:  uint16(hdr.Type),
			Machine:    hdr.Machine.String(),
			MachineID:  uint16(hdr.Machine),
			Version:    hdr.Version,
			Entry:      fmt.Sprintf("%#x", hdr.Entry),
			PhOff:      hdr.PhOff,
			ShOff:      hdr.ShOff,
			Flags:      hdr.Flags,
			HeaderSize: hdr.EhSize,
			PhEntSize:  hdr.PhEntSize,
			PhNum:      hdr.PhNum,
			ShEntSize:  hdr.ShEntSize,
			ShNum:      hdr.ShNum,
			ShStrNdx:   hdr.ShStrNdx,
		}
	}
	for _, seg := range img.Segments {
		doc.Segments = append(doc.Segments, SegmentView{
			Type:     seg.Type.String(),
			Flags:    seg.Flags.String(),
			Offset:   seg.Offset,
			VAddr:    fmt.Sprintf("%#x", seg.VAddr),
			PAddr:    fmt.Sprintf("%#x", seg.PAddr),
			FileSize: seg.FileSize,
			MemSize:  seg.MemSize,
			Align:    seg.Align,
		})
	}
	for _, sec := range img.Sections {
		doc.Sections = append(doc.Sections, SectionView{
			Name:         sec.Name,
			NameResolved: sec.NameResolved,
			NameOffset:   sec.NameOffset,
			Type:         sec.Type.String(),
			Flags:        sec.Flags,
			Addr:         fmt.Sprintf("%#x", sec.Addr),
			Offset:       sec.Offset,
			Size:         sec.Size,
			Link:         sec.Link,
			Info:         sec.Info,
			AddrAlign:    sec.AddrAlign,
			EntSize:      sec.EntSize,
		})
	}
	for _, w := range img.Warnings {
		doc.Warnings = append(doc.Warnings, errorView(w))
	}
	if img.Err != nil {
		ev := errorView(img.Err)
		doc.Error = &ev
	}
	return doc
}

func errorView(e *elfparse.DecodeError) ErrorView {
	kind := "unknown"
	if k := e.Kind(); k != nil {
		kind = k.Error()
	}
	return ErrorView{
		Stage:       e.Stage.String(),
		Index:       e.Index,
		Offset:      e.Offset,
		Kind:        kind,
		Message:     e.Error(),
		Recoverable: e.Recoverable(),
	}
}

// WriteJSON writes the indented JSON document for img to w
func WriteJSON(w io.Writer, path string, img *elfparse.Image, report *checks.CheckReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewDocument(path, img, report))
}
