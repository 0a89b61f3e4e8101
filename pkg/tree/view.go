package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/specvital/explorer/pkg/domain"
)

var (
	ErrDirectoryWithoutParent = errors.New("tree: directory without parent")
	ErrFileWithoutDirectory   = errors.New("tree: file without directory")
	ErrSuiteWithoutFile       = errors.New("tree: suite without file")
	ErrMatrixWithoutFile      = errors.New("tree: matrix without file")
	ErrCaseWithoutContainer   = errors.New("tree: case without file, suite or matrix")
)

// ViewError reports a node that could not be placed while materializing a view.
type ViewError struct {
	Node Node
	Err  error
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Node.Path())
}

func (e *ViewError) Unwrap() error {
	return e.Err
}

// ViewHeader holds the fields shared by every view.
type ViewHeader struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Header returns the path and name of the view.
func (h ViewHeader) Header() ViewHeader { return h }

func (ViewHeader) isView() {}

// View is a nested, render-ready projection of nodes.
// It is implemented by *DirectoryView, *FileView, *SuiteView, *MatrixView
// and *CaseView.
type View interface {
	Type() NodeType
	Header() ViewHeader
	isView()
}

type DirectoryView struct {
	ViewHeader
	Directories []*DirectoryView `json:"directories"`
	Files       []*FileView      `json:"files"`
}

type FileView struct {
	ViewHeader
	Suites   []*SuiteView  `json:"suites"`
	Matrices []*MatrixView `json:"matrices"`
	Cases    []*Case       `json:"cases"`
}

type SuiteView struct {
	ViewHeader
	Suites   []*SuiteView  `json:"suites"`
	Matrices []*MatrixView `json:"matrices"`
	Cases    []*Case       `json:"cases"`
}

type MatrixView struct {
	ViewHeader
	Cases []*Case `json:"cases"`
}

type CaseView struct {
	ViewHeader
	Properties domain.TestItem `json:"properties"`
}

func (*DirectoryView) Type() NodeType { return NodeTypeDirectory }
func (*FileView) Type() NodeType      { return NodeTypeFile }
func (*SuiteView) Type() NodeType     { return NodeTypeSuite }
func (*MatrixView) Type() NodeType    { return NodeTypeMatrix }
func (*CaseView) Type() NodeType      { return NodeTypeCase }

func (v *DirectoryView) MarshalJSON() ([]byte, error) {
	type alias DirectoryView
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*alias
	}{NodeTypeDirectory, (*alias)(v)})
}

func (v *FileView) MarshalJSON() ([]byte, error) {
	type alias FileView
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*alias
	}{NodeTypeFile, (*alias)(v)})
}

func (v *SuiteView) MarshalJSON() ([]byte, error) {
	type alias SuiteView
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*alias
	}{NodeTypeSuite, (*alias)(v)})
}

func (v *MatrixView) MarshalJSON() ([]byte, error) {
	type alias MatrixView
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*alias
	}{NodeTypeMatrix, (*alias)(v)})
}

func (v *CaseView) MarshalJSON() ([]byte, error) {
	type alias CaseView
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		*alias
	}{NodeTypeCase, (*alias)(v)})
}

func headerOf(n Node) ViewHeader {
	return ViewHeader{Path: n.Path(), Name: n.Name()}
}

func newDirectoryView(n Node) *DirectoryView {
	return &DirectoryView{
		ViewHeader:  headerOf(n),
		Directories: []*DirectoryView{},
		Files:       []*FileView{},
	}
}

func newFileView(n Node) *FileView {
	return &FileView{
		ViewHeader: headerOf(n),
		Suites:     []*SuiteView{},
		Matrices:   []*MatrixView{},
		Cases:      []*Case{},
	}
}

func newSuiteView(n Node) *SuiteView {
	return &SuiteView{
		ViewHeader: headerOf(n),
		Suites:     []*SuiteView{},
		Matrices:   []*MatrixView{},
		Cases:      []*Case{},
	}
}

func newMatrixView(n Node) *MatrixView {
	return &MatrixView{ViewHeader: headerOf(n), Cases: []*Case{}}
}

// NewCaseView wraps a case node into a view.
func NewCaseView(c *Case) *CaseView {
	return &CaseView{ViewHeader: headerOf(c), Properties: c.Properties}
}

// MakeView materializes an ordered node list into nested views.
//
// Nodes are consumed in a single pass, each one attached to the innermost
// open container of the right kind:
//   - a directory nests under the current directory when its path starts with
//     the current directory path, else under the current root view when its
//     path starts with that root's path, else it opens a new root view.
//     After a root-level file, it nests under its parent directory or opens
//     a new root view when it has no parent;
//   - a file goes to its parent directory, or opens a new root view when it
//     has no parent; suites and matrices go to the current file;
//   - cases go to the current matrix, else suite, else file.
//
// Opening a directory closes the current file, suite and matrix; opening a file
// closes the current suite and matrix; opening a suite closes the current
// matrix. When the first node is a case, a single case view is returned.
// The input slice is not modified.
func MakeView(nodes []Node) ([]View, error) {
	if len(nodes) == 0 {
		return []View{}, nil
	}

	var (
		views            []View
		currentView      View
		currentDirectory *DirectoryView
		currentFile      *FileView
		currentSuite     *SuiteView
		currentMatrix    *MatrixView
	)

	dirs := make(map[string]*DirectoryView)

	switch root := nodes[0].(type) {
	case *Case:
		return []View{NewCaseView(root)}, nil
	case *Directory:
		currentDirectory = newDirectoryView(root)
		currentView = currentDirectory
		dirs[currentDirectory.Path] = currentDirectory
	case *File:
		currentFile = newFileView(root)
		currentView = currentFile
	case *Suite:
		currentSuite = newSuiteView(root)
		currentView = currentSuite
	case *Matrix:
		currentMatrix = newMatrixView(root)
		currentView = currentMatrix
	default:
		return nil, fmt.Errorf("tree: unknown node type %T", root)
	}
	views = append(views, currentView)

	for _, node := range nodes[1:] {
		switch n := node.(type) {
		case *Directory:
			currentFile, currentSuite, currentMatrix = nil, nil, nil
			dir := newDirectoryView(n)
			if currentDirectory == nil {
				// After a root-level file.
				if parent, ok := dirs[n.Parent()]; ok {
					parent.Directories = append(parent.Directories, dir)
				} else if n.Parent() == "" {
					currentView = dir
					views = append(views, dir)
				} else {
					return nil, &ViewError{Node: n, Err: ErrDirectoryWithoutParent}
				}
			} else if strings.HasPrefix(n.Path(), currentDirectory.Path) {
				currentDirectory.Directories = append(currentDirectory.Directories, dir)
			} else if root, ok := currentView.(*DirectoryView); ok && strings.HasPrefix(n.Path(), root.Path) {
				root.Directories = append(root.Directories, dir)
			} else {
				currentView = dir
				views = append(views, dir)
			}
			currentDirectory = dir
			dirs[dir.Path] = dir

		case *File:
			currentSuite, currentMatrix = nil, nil
			file := newFileView(n)
			switch parent, ok := dirs[n.Parent()]; {
			case currentDirectory != nil && n.Parent() == currentDirectory.Path:
				currentDirectory.Files = append(currentDirectory.Files, file)
			case ok:
				parent.Files = append(parent.Files, file)
				currentDirectory = parent
			case n.Parent() == "":
				currentDirectory = nil
				currentView = file
				views = append(views, file)
			default:
				return nil, &ViewError{Node: n, Err: ErrFileWithoutDirectory}
			}
			currentFile = file

		case *Suite:
			currentMatrix = nil
			if currentFile == nil {
				return nil, &ViewError{Node: n, Err: ErrSuiteWithoutFile}
			}
			suite := newSuiteView(n)
			currentFile.Suites = append(currentFile.Suites, suite)
			currentSuite = suite

		case *Matrix:
			if currentFile == nil {
				return nil, &ViewError{Node: n, Err: ErrMatrixWithoutFile}
			}
			matrix := newMatrixView(n)
			currentFile.Matrices = append(currentFile.Matrices, matrix)
			currentMatrix = matrix

		case *Case:
			switch {
			case currentMatrix != nil:
				currentMatrix.Cases = append(currentMatrix.Cases, n)
			case currentSuite != nil:
				currentSuite.Cases = append(currentSuite.Cases, n)
			case currentFile != nil:
				currentFile.Cases = append(currentFile.Cases, n)
			default:
				return nil, &ViewError{Node: n, Err: ErrCaseWithoutContainer}
			}

		default:
			return nil, fmt.Errorf("tree: unknown node type %T", n)
		}
	}
	return views, nil
}

// WalkFunc is called for every view visited by Walk. depth is 0 for roots.
type WalkFunc func(v View, depth int) error

// Walk visits views depth first: directories before files, then suites,
// matrices and cases. Cases are visited as case views.
// Walking stops at the first error returned by fn.
func Walk(views []View, fn WalkFunc) error {
	for _, v := range views {
		if err := walk(v, 0, fn); err != nil {
			return err
		}
	}
	return nil
}

func walk(v View, depth int, fn WalkFunc) error {
	if err := fn(v, depth); err != nil {
		return err
	}
	var children []View
	switch v := v.(type) {
	case *DirectoryView:
		for _, d := range v.Directories {
			children = append(children, d)
		}
		for _, f := range v.Files {
			children = append(children, f)
		}
	case *FileView:
		children = containerChildren(v.Suites, v.Matrices, v.Cases)
	case *SuiteView:
		children = containerChildren(v.Suites, v.Matrices, v.Cases)
	case *MatrixView:
		children = containerChildren(nil, nil, v.Cases)
	}
	for _, c := range children {
		if err := walk(c, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

func containerChildren(suites []*SuiteView, matrices []*MatrixView, cases []*Case) []View {
	children := make([]View, 0, len(suites)+len(matrices)+len(cases))
	for _, s := range suites {
		children = append(children, s)
	}
	for _, m := range matrices {
		children = append(children, m)
	}
	for _, c := range cases {
		children = append(children, NewCaseView(c))
	}
	return children
}
