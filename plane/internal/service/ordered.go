package service

import (
	"bytes"
	"encoding/json"
)

/*
OrderedMap 保持插入顺序的 JSON 对象
功能：以名称或标题为键的列表需按查询顺序输出，内置 map 序列化时会按键排序。
重复的键覆盖旧值，但保留首次出现的位置。
*/
type OrderedMap struct {
	keys   []string
	values map[string]any
}

/* NewOrderedMap 创建空对象 */
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]any)}
}

/* Set 写入键值 */
func (m *OrderedMap) Set(key string, v any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

/* Get 读取键值 */
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

/* Keys 按插入顺序返回键 */
func (m *OrderedMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

/* Len 键数量 */
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalNoEscape(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

/* marshalNoEscape 序列化但不转义 <、>、& */
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
