package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/clrvm"
	"github.com/clrvm/clrvm/pe"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// interactiveModel browses the classes and methods a loaded assembly
// declares and invokes one with user-supplied arguments, the CLR analogue
// of the teacher's "pick an export and call it" flow.
type interactiveModel struct {
	err      error
	rt       *clrvm.Runtime
	filename string
	libDirs  libDirs
	result   string
	classes  []classInfo
	methods  []methodInfo
	inputs   []textinput.Model
	selClass int
	selMeth  int
	focusIdx int
	state    modelState
}

type classInfo struct {
	name  string
	class *clrtype.RtClass
}

type methodInfo struct {
	name       string
	method     *clrtype.MethodInfo
	paramTypes []string
	invoker    string
}

type modelState int

const (
	stateSelectClass modelState = iota
	stateSelectMethod
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(filename string, dirs libDirs) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		libDirs:  dirs,
		state:    stateSelectClass,
	}
}

type loadedMsg struct {
	err     error
	rt      *clrvm.Runtime
	classes []classInfo
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadAssembly
}

func (m *interactiveModel) loadAssembly() tea.Msg {
	rt, err := clrvm.New(clrvm.DefaultOptions())
	if err != nil {
		return loadedMsg{err: err}
	}

	dirs := append(libDirs{filepath.Dir(m.filename)}, m.libDirs...)
	if _, err := rt.LoadAssembly(corlibName, fileLoader(dirs)); err != nil {
		rt.Close()
		return loadedMsg{err: err}
	}
	if _, err := rt.Initialize(); err != nil {
		rt.Close()
		return loadedMsg{err: err}
	}

	name := assemblyDisplayName(m.filename)
	module, err := rt.LoadAssembly(name, func(string) ([]byte, error) { return os.ReadFile(m.filename) })
	if err != nil {
		rt.Close()
		return loadedMsg{err: err}
	}

	classes, err := listClasses(module)
	if err != nil {
		rt.Close()
		return loadedMsg{err: err}
	}

	return loadedMsg{rt: rt, classes: classes}
}

// listClasses walks the TypeDef table directly (no bulk enumerator exists
// on Module; ClassByName only resolves one class at a time), the same rid
// range a single ClassByTypeDefRid lookup already understands.
func listClasses(module *clrtype.Module) ([]classInfo, error) {
	count := module.Image.RowCount(pe.TableTypeDef)
	var classes []classInfo
	for rid := uint32(1); rid <= count; rid++ {
		class, err := module.ClassByTypeDefRid(rid)
		if err != nil {
			return nil, err
		}
		name := class.Name
		if class.Namespace != "" {
			name = class.Namespace + "." + class.Name
		}
		classes = append(classes, classInfo{name: name, class: class})
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].name < classes[j].name })
	return classes, nil
}

func methodsOf(rt *clrvm.Runtime, class *clrtype.RtClass) ([]methodInfo, error) {
	if err := rt.MaterializeClass(class); err != nil {
		return nil, err
	}
	var methods []methodInfo
	for _, mi := range class.Methods {
		mf := methodInfo{name: mi.Name, method: mi, invoker: invokerStr(mi.Invoker)}
		for _, p := range mi.ParamTypesigs {
			mf.paramTypes = append(mf.paramTypes, typesigStr(p))
		}
		methods = append(methods, mf)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].name < methods[j].name })
	return methods, nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.rt != nil {
				m.rt.Close()
			}
			return m, tea.Quit

		case "up", "k":
			switch m.state {
			case stateSelectClass:
				if m.selClass > 0 {
					m.selClass--
				}
			case stateSelectMethod:
				if m.selMeth > 0 {
					m.selMeth--
				}
			}

		case "down", "j":
			switch m.state {
			case stateSelectClass:
				if m.selClass < len(m.classes)-1 {
					m.selClass++
				}
			case stateSelectMethod:
				if m.selMeth < len(m.methods)-1 {
					m.selMeth++
				}
			}

		case "enter":
			switch m.state {
			case stateSelectClass:
				methods, err := methodsOf(m.rt, m.classes[m.selClass].class)
				if err != nil {
					m.err = err
					return m, nil
				}
				m.methods = methods
				m.selMeth = 0
				m.state = stateSelectMethod

			case stateSelectMethod:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateSelectMethod:
				m.state = stateSelectClass
				m.methods = nil
			case stateInputArgs:
				m.state = stateSelectMethod
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.classes = msg.classes

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.methods[m.selMeth]
	m.inputs = make([]textinput.Model, len(f.paramTypes))
	for i, t := range f.paramTypes {
		ti := textinput.New()
		ti.Placeholder = t
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.methods[m.selMeth]
	params := make([]uint64, len(m.inputs))
	for i, input := range m.inputs {
		params[i] = convertArg(input.Value(), f.paramTypes[i])
	}

	ret, err := m.rt.Invoke(f.method, params)
	if err != nil {
		return callResultMsg{err: err}
	}
	if len(ret) == 0 {
		return callResultMsg{result: "(void)"}
	}
	return callResultMsg{result: fmt.Sprintf("%v", ret)}
}

func convertArg(value string, typeStr string) uint64 {
	switch typeStr {
	case "bool":
		if value == "true" || value == "1" {
			return 1
		}
		return 0
	case "float32", "float64":
		v, _ := strconv.ParseFloat(value, 64)
		return uint64(v)
	default:
		v, _ := strconv.ParseInt(value, 10, 64)
		return uint64(v)
	}
}

func invokerStr(k clrtype.InvokerKind) string {
	switch k {
	case clrtype.InvokerInterpretedIL:
		return "il"
	case clrtype.InvokerInternalCall:
		return "icall"
	case clrtype.InvokerIntrinsic:
		return "intrinsic"
	case clrtype.InvokerPInvoke:
		return "pinvoke"
	case clrtype.InvokerDelegateCtor:
		return "delegate-ctor"
	case clrtype.InvokerDelegateInvoke:
		return "delegate-invoke"
	case clrtype.InvokerArrayAccessor:
		return "array-accessor"
	default:
		return "unbound"
	}
}

func typesigStr(t *clrtype.Typesig) string {
	switch t.Elem {
	case clrtype.ElemBoolean:
		return "bool"
	case clrtype.ElemChar:
		return "char"
	case clrtype.ElemI1:
		return "sbyte"
	case clrtype.ElemU1:
		return "byte"
	case clrtype.ElemI2:
		return "short"
	case clrtype.ElemU2:
		return "ushort"
	case clrtype.ElemI4:
		return "int"
	case clrtype.ElemU4:
		return "uint"
	case clrtype.ElemI8:
		return "long"
	case clrtype.ElemU8:
		return "ulong"
	case clrtype.ElemR4:
		return "float32"
	case clrtype.ElemR8:
		return "float64"
	case clrtype.ElemString:
		return "string"
	case clrtype.ElemObject:
		return "object"
	case clrtype.ElemSZArray:
		return typesigStr(t.Element) + "[]"
	case clrtype.ElemClass, clrtype.ElemValueType:
		return "class"
	default:
		return fmt.Sprintf("elem%d", t.Elem)
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.rt == nil {
		return "Loading assembly..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("clrrun"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectClass:
		b.WriteString("Select a class:\n\n")
		for i, c := range m.classes {
			line := c.name
			if i == m.selClass {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • q quit"))

	case stateSelectMethod:
		b.WriteString(fmt.Sprintf("Methods on %s:\n\n", funcStyle.Render(m.classes[m.selClass].name)))
		for i, f := range m.methods {
			line := m.formatMethod(f)
			if i == m.selMeth {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • esc back • q quit"))

	case stateInputArgs:
		f := m.methods[m.selMeth]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.paramTypes[i]))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.methods[m.selMeth]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatMethod(f methodInfo) string {
	return funcStyle.Render(f.name) + "(" + strings.Join(f.paramTypes, ", ") + ") " +
		typeStyle.Render("["+f.invoker+"]")
}

func assemblyDisplayName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func runInteractive(filename string, dirs libDirs) error {
	p := tea.NewProgram(newInteractiveModel(filename, dirs), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
