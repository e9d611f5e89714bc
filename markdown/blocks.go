package markdown

// Block is a single element of compiled document content. The set of
// implementations is closed, consumers switch over concrete types.
type Block interface {
	block()
}

// Alignment of an inline table column.
type Alignment int

const (
	AlignNone Alignment = iota
	AlignLeft
	AlignCenter
	AlignRight
)

func (a Alignment) String() string {
	switch a {
	case AlignLeft:
		return "left"
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return "none"
	}
}

type (
	// Heading appears only inside block containers (quotes, list items) -
	// top level headings become Section boundaries instead.
	Heading struct {
		Level int
		Runs  []Run
	}

	Paragraph struct {
		Runs []Run
	}

	// Image references an external raster or vector file. When the file is
	// missing Exists is false and no pixel data is ever attached.
	Image struct {
		Path    string // as written in the source
		AbsPath string // resolved against the document root
		Alt     []Run
		Title   string
		Format  string // lowercase extension without the dot
		Exists  bool
	}

	CodeBlock struct {
		Language string
		Code     string
		Fenced   bool
	}

	BlockQuote struct {
		Blocks []Block
	}

	// ListItem content is a full block sequence, Task distinguishes GFM
	// task list items (nil for plain items).
	ListItem struct {
		Task   *bool
		Blocks []Block
	}

	// List is ordered when Start is set (holding the first ordinal).
	List struct {
		Start *int
		Items []ListItem
	}

	// InlineTable is a GFM pipe table. Headers and cells keep full run
	// formatting.
	InlineTable struct {
		Alignments []Alignment
		Headers    [][]Run
		Rows       [][][]Run
	}

	// CsvTable is produced from a link whose destination carries the
	// configured table extension. Data is loaded at compile time, a missing
	// file yields Exists false and no data.
	CsvTable struct {
		Path    string
		AbsPath string
		Exists  bool
		Headers []string
		Rows    [][]string
	}

	Rule struct{}

	HTML struct {
		Raw string
	}

	// IncludedCode is source text pulled in via section metadata.
	IncludedCode struct {
		Path     string
		AbsPath  string
		Language string
		Content  string
		Exists   bool
	}
)

func (Heading) block()      {}
func (Paragraph) block()    {}
func (Image) block()        {}
func (CodeBlock) block()    {}
func (BlockQuote) block()   {}
func (List) block()         {}
func (InlineTable) block()  {}
func (CsvTable) block()     {}
func (Rule) block()         {}
func (HTML) block()         {}
func (IncludedCode) block() {}

// Section is a numbered slice of the document rooted at a heading.
type Section struct {
	HeadingLevel int
	Heading      string
	Number       SectionNumber
	Line         int
	SourceFile   string
	Blocks       []Block
	Meta         *SectionMeta
}

// WalkBlocks visits every block in the slice depth first, descending into
// quotes and list items. Traversal stops when fn returns false.
func WalkBlocks(blocks []Block, fn func(Block) bool) bool {
	for _, b := range blocks {
		if !fn(b) {
			return false
		}
		switch t := b.(type) {
		case BlockQuote:
			if !WalkBlocks(t.Blocks, fn) {
				return false
			}
		case List:
			for _, item := range t.Items {
				if !WalkBlocks(item.Blocks, fn) {
					return false
				}
			}
		}
	}
	return true
}
