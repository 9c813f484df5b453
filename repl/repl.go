// repl (read eval print loop) adapts db to the command line.
package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/lexiphanic/restdriver/compiler"
	"github.com/lexiphanic/restdriver/db"
	"github.com/lexiphanic/restdriver/transformer"
	"golang.org/x/term"
)

const (
	// emptyRowValue is printed when the cell in a row is nil.
	emptyRowValue = "NULL"
	// emptyHeaderValue is printed when the cell in a header is the empty string
	emptyHeaderValue = "<anonymous>"
	// prompt is the prompt.
	prompt = "restsql> "
	// promptContinued is the prompt when it is pending termination for example
	// by a semi colon.
	promptContinued = "    ...> "
)

type repl struct {
	db       *db.DB
	baseURL  string
	terminal *term.Terminal
	// dryRun prints requests instead of sending them.
	dryRun bool
}

func New(db *db.DB, baseURL string) *repl {
	r := &repl{
		db:       db,
		baseURL:  baseURL,
		terminal: term.NewTerminal(os.Stdin, prompt),
	}
	r.loadHistory()
	return r
}

func (r *repl) Run() {
	r.writeLn("Welcome to restsql. Type .help for commands or .exit to exit")
	r.writeLn("Connected to " + r.baseURL)

	// Handling kill signals works under two methods for the REPL. When the
	// terminal is in raw mode the signals are caught by readline as bytes. When
	// the terminal is not in raw mode the signals are caught by the following
	// channel.
	//
	// The handling keeping in mind two major considerations in that the
	// terminal history is written to and the database always allows a long
	// running query to be shut down.
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		r.exitGracefully()
	}()

	previousInput := ""
	for {
		line := r.readLine(previousInput)
		input := previousInput + line
		if len(input) == 0 {
			continue
		}
		if input[0] == '.' {
			r.command(input)
			continue
		}

		statements := r.db.Tokenize(input)
		terminated := r.db.IsTerminated(statements)
		if !terminated {
			previousInput = input + "\n"
			continue
		}
		previousInput = ""
		for _, statement := range statements {
			r.execute(statement)
		}
	}
}

func (r *repl) command(input string) {
	switch strings.TrimSpace(input) {
	case ".exit":
		r.exitGracefully()
	case ".dry":
		r.dryRun = !r.dryRun
		r.writeLn(fmt.Sprintf("Dry run: %t", r.dryRun))
	case ".help":
		r.writeLn(".dry   toggle printing requests instead of sending them")
		r.writeLn(".exit  exit")
	default:
		r.writeLn("Command not supported")
	}
}

func (r *repl) execute(statement compiler.Statement) {
	stmt, err := r.db.Parse(statement)
	if err != nil {
		r.writeLn("Err: " + err.Error())
		return
	}
	if r.dryRun {
		req, _, err := r.db.Translate(stmt, nil)
		if err != nil {
			r.writeLn("Err: " + err.Error())
			return
		}
		r.writeLn(describeRequest(req))
		return
	}
	result := r.db.Execute(context.Background(), stmt, nil)
	if result.Request != nil {
		r.writeLn(result.Request.Method + " " + result.Request.URI())
	}
	if result.Err != nil {
		r.writeLn("Err: " + result.Err.Error())
		return
	}
	r.writeLn(r.printRows(result.Columns, result.Rows))
	r.writeLn("Time: " + result.Duration.String())
}

// describeRequest renders the method, URI and body of req.
func describeRequest(req *transformer.Request) string {
	ret := req.Method + " " + req.URI()
	if len(req.Body) > 0 {
		ret += "\n" + string(req.Body)
	}
	return ret
}

func (r *repl) readLine(previousInput string) string {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		panic(err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)
	if previousInput == "" {
		r.terminal.SetPrompt(prompt)
	} else {
		r.terminal.SetPrompt(promptContinued)
	}
	line, err := r.terminal.ReadLine()
	if err != nil {
		if err == io.EOF {
			term.Restore(int(os.Stdin.Fd()), oldState)
			r.exitGracefully()
		}
		panic("err reading line: " + err.Error())
	}
	return line
}

func (r *repl) writeLn(text string) {
	r.terminal.Write(([]byte)(text + "\n"))
}

func (r *repl) writeWarning(text string) {
	r.terminal.Write(r.terminal.Escape.Yellow)
	r.writeLn(text)
	r.terminal.Write(r.terminal.Escape.Reset)
}

func (r *repl) printRows(columns []string, rows []transformer.Row) string {
	cells := make([][]*string, 0, len(rows))
	for _, row := range rows {
		line := make([]*string, len(columns))
		for i, col := range columns {
			line[i] = formatCell(row[col])
		}
		cells = append(cells, line)
	}
	ret := ""
	widths := r.getWidths(columns, cells)
	ret += r.printHeader(columns, widths)
	ret = ret + "\n"
	for _, row := range cells {
		ret += r.printRow(row, widths)
		ret = ret + "\n"
	}
	ret = ret + fmt.Sprintf("(%d rows)\n", len(rows))
	return ret
}

// formatCell renders a value of a row. A nil result means NULL.
func formatCell(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case json.Number:
		s = t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			s = fmt.Sprint(t)
			break
		}
		s = string(b)
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

func (*repl) getWidths(header []string, rows [][]*string) []int {
	widths := make([]int, len(header))
	for i, hCol := range header {
		size := len(emptyHeaderValue)
		if hCol != "" {
			size = len(hCol)
		}
		if widths[i] < size {
			widths[i] = size
		}
	}
	for _, row := range rows {
		for i, column := range row {
			size := len(emptyRowValue)
			if column != nil {
				size = len(*column)
			}
			if widths[i] < size {
				widths[i] = size
			}
		}
	}
	return widths
}

func (*repl) printHeader(row []string, widths []int) string {
	ret := ""
	for i, column := range row {
		v := emptyHeaderValue
		if column != "" {
			v = column
		}
		ret = ret + fmt.Sprintf(" %-*s ", widths[i], v)
		if i != len(row)-1 {
			ret = ret + "|"
		}
	}
	ret = ret + "\n"
	for i := range row {
		ret = ret + fmt.Sprintf("-%s-", strings.Repeat("-", widths[i]))
		if i != len(row)-1 {
			ret = ret + "+"
		}
	}
	return ret
}

func (*repl) printRow(row []*string, widths []int) string {
	ret := ""
	for i, column := range row {
		v := emptyRowValue
		if column != nil {
			v = *column
		}
		ret = ret + fmt.Sprintf(" %-*s ", widths[i], v)
		if i != len(row)-1 {
			ret = ret + "|"
		}
	}
	return ret
}

func (r *repl) exitGracefully() {
	r.saveHistory()
	os.Exit(0)
}

func (r *repl) loadHistory() {
	p, err := r.getHistoryPath()
	if err != nil {
		r.writeWarning("failed to get history path " + err.Error())
		return
	}
	contents, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		r.writeWarning("failed to load history " + err.Error())
		return
	}
	lines := strings.Split((string)(contents), "\n")
	slices.Reverse(lines)
	for _, line := range lines {
		if line == "" {
			continue
		}
		r.terminal.History.Add(line)
	}
}

func (r *repl) saveHistory() {
	history := []byte{}
	for i := range r.terminal.History.Len() {
		str_entry := r.terminal.History.At(i)
		byte_entry := ([]byte)(str_entry + "\n")
		history = append(history, byte_entry...)
	}
	p, err := r.getHistoryPath()
	if err != nil {
		r.writeWarning("failed to get history path for saving " + err.Error())
		return
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		r.writeWarning("failed to open history file for saving " + err.Error())
		return
	}
	defer f.Close()
	err = f.Truncate(0)
	if err != nil {
		r.writeWarning("failed to overwrite history " + err.Error())
		return
	}
	_, err = f.Write(history)
	if err != nil {
		r.writeWarning("failed to write history " + err.Error())
		return
	}
}

func (r *repl) getHistoryPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return dir + "/.restsql_history", nil
}
