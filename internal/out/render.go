package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	"github.com/ggonzalez94/defi-agent/internal/config"
	"github.com/ggonzalez94/defi-agent/internal/model"
)

// Render writes env in the configured output mode. For a successful action
// reply, --select, --results-only and plain output work on the result itself
// rather than on the reply wrapper.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	switch settings.OutputMode {
	case "markdown":
		_, err := io.WriteString(w, markdownEnvelope(env))
		return err
	case "plain":
		return renderPlainEnvelope(w, env, settings)
	default:
		return renderJSONEnvelope(w, env, settings)
	}
}

func renderJSONEnvelope(w io.Writer, env model.Envelope, settings config.Settings) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if settings.ResultsOnly {
		return enc.Encode(payloadOf(env, settings))
	}
	if len(settings.SelectFields) > 0 {
		env.Data = payloadOf(env, settings)
	}
	return enc.Encode(env)
}

func renderPlainEnvelope(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := payloadOf(env, settings)
	if settings.ResultsOnly {
		return writePlain(w, data)
	}
	plain := map[string]any{
		"success":  env.Success,
		"data":     data,
		"warnings": env.Warnings,
		"meta":     env.Meta,
	}
	if env.Error != nil {
		plain["error"] = env.Error
	}
	return writePlain(w, plain)
}

// payloadOf is the data the user asked to see: the unwrapped result of an
// action reply, narrowed to the selected fields.
func payloadOf(env model.Envelope, settings config.Settings) any {
	data := env.Data
	if reply, ok := data.(actions.Reply); ok && reply.Response.Success && reply.Response.Result != nil {
		data = *reply.Response.Result
	}
	if len(settings.SelectFields) > 0 {
		data = selectFields(data, settings.SelectFields)
	}
	return data
}

// selectFields keeps the given gjson paths of an object, or of every object
// in an array. Paths may be nested ("submitted.hash").
func selectFields(data any, fields []string) any {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	parsed := gjson.ParseBytes(raw)
	switch {
	case parsed.IsArray():
		rows := make([]map[string]any, 0)
		parsed.ForEach(func(_, row gjson.Result) bool {
			if row.IsObject() {
				rows = append(rows, pick(row, fields))
			}
			return true
		})
		return rows
	case parsed.IsObject():
		return pick(parsed, fields)
	default:
		return data
	}
}

func pick(row gjson.Result, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v := row.Get(f); v.Exists() {
			out[f] = v.Value()
		}
	}
	return out
}

// writePlain prints one key=value line per row, or a single line for a
// scalar or object.
func writePlain(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		_, err := fmt.Fprintln(w, plainLine(parsed))
		return err
	}
	rows := parsed.Array()
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, plainLine(row)); err != nil {
			return err
		}
	}
	return nil
}

func plainLine(v gjson.Result) string {
	if !v.IsObject() {
		return plainValue(v)
	}
	fields := map[string]gjson.Result{}
	v.ForEach(func(k, val gjson.Result) bool {
		fields[k.String()] = val
		return true
	})
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+plainValue(fields[k]))
	}
	return strings.Join(parts, " ")
}

func plainValue(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return "null"
	default:
		return v.Raw
	}
}

func markdownEnvelope(env model.Envelope) string {
	if reply, ok := env.Data.(actions.Reply); ok {
		return Markdown(string(reply.Action), reply.Response)
	}
	if !env.Success && env.Error != nil {
		return apology(env.Meta.Command, &model.ResponseError{Code: env.Error.Type, Message: env.Error.Message})
	}
	var b strings.Builder
	writeJSON(&b, env.Data)
	return b.String()
}
