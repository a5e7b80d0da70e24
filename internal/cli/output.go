package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output форматирует результаты команд conductor-cli: tab-таблица
// для чтения человеком, JSON при флаге --json. Данные идут в stdout,
// служебные сообщения — в stderr, чтобы не ломать пайплайны.
type Output struct {
	json bool
	data io.Writer
	msg  io.Writer
}

// NewOutput создаёт Output; jsonMode включает JSON-вывод.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		json: jsonMode,
		data: os.Stdout,
		msg:  os.Stderr,
	}
}

// Print выводит результат команды: rows таблицей или raw как JSON.
func (o *Output) Print(headers []string, rows [][]string, raw any) {
	if o.json {
		enc := json.NewEncoder(o.data)
		enc.SetIndent("", "  ")
		if err := enc.Encode(raw); err != nil {
			fmt.Fprintf(o.msg, "failed to encode JSON: %v\n", err)
		}
		return
	}
	o.table(headers, rows)
}

func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.data, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// Success печатает подтверждение выполненной команды.
func (o *Output) Success(message string) {
	fmt.Fprintln(o.msg, message)
}
