package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AbsentMarker 展示层使用的缺失占位
const AbsentMarker = "-"

type valueKind uint8

const (
	kindAbsent valueKind = iota
	kindText
	kindNumber
)

// Value 指标值：文本、数字或显式缺失。JSON 中缺失编码为 null，数字保持为数字以便排序。
type Value struct {
	kind valueKind
	text string
	num  float64
}

var Absent = Value{}

func Text(s string) Value {
	return Value{kind: kindText, text: s}
}

func Number(f float64) Value {
	return Value{kind: kindNumber, num: f}
}

func (v Value) IsAbsent() bool { return v.kind == kindAbsent }
func (v Value) IsNumber() bool { return v.kind == kindNumber }

// Float 数字值；非数字返回 false
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == kindNumber
}

func (v Value) String() string {
	switch v.kind {
	case kindText:
		return v.text
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return AbsentMarker
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindText:
		return json.Marshal(v.text)
	case kindNumber:
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Absent
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("parser: invalid value %s", data)
		}
		*v = Number(f)
	}
	return nil
}

// Field 一个指标
type Field struct {
	Name  string
	Value Value
}

// Record 指标名到值的有序映射，键顺序即表格行顺序
type Record struct {
	fields []Field
	index  map[string]int
}

func NewRecord() *Record {
	return &Record{index: make(map[string]int)}
}

// Set 写入指标；已存在时保持原位置
func (r *Record) Set(name string, v Value) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = v
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// SetIfAbsent 仅在当前缺失时写入
func (r *Record) SetIfAbsent(name string, v Value) {
	if cur, ok := r.Get(name); ok && !cur.IsAbsent() {
		return
	}
	r.Set(name, v)
}

func (r *Record) Get(name string) (Value, bool) {
	if r == nil || r.index == nil {
		return Absent, false
	}
	i, ok := r.index[name]
	if !ok {
		return Absent, false
	}
	return r.fields[i].Value, true
}

func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Name
	}
	return keys
}

func (r *Record) Fields() []Field {
	if r == nil {
		return nil
	}
	return append([]Field(nil), r.fields...)
}

func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Present 非缺失字段数
func (r *Record) Present() int {
	n := 0
	for _, f := range r.Fields() {
		if !f.Value.IsAbsent() {
			n++
		}
	}
	return n
}

// AllAbsent 空记录同样是合法输出，由调用方决定如何处理
func (r *Record) AllAbsent() bool {
	return r.Present() == 0
}

// Clone 返回副本，Record 创建后不再修改，跨 goroutine 传递时使用
func (r *Record) Clone() *Record {
	c := NewRecord()
	for _, f := range r.Fields() {
		c.Set(f.Name, f.Value)
	}
	return c
}

func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 保留 JSON 对象中的键顺序
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("parser: record must be a JSON object")
	}

	out := NewRecord()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("parser: invalid record key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return err
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = *out
	return nil
}
