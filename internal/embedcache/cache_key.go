package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// entryKey identifies one cached vector. Vectors from different models or
// task types never share an entry.
type entryKey struct {
	model string
	task  string
	hash  string
}

func keyFor(modelName, taskType, text string) entryKey {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	sum := sha256.Sum256([]byte(text))
	return entryKey{model: modelName, task: taskType, hash: hex.EncodeToString(sum[:])}
}

func (k entryKey) String() string {
	return "embed:" + k.model + ":" + k.task + ":" + k.hash
}

// misses collects the distinct texts that still need a vector. Repeated
// texts in one batch are embedded once; slots maps each miss back to every
// index it fills.
type misses struct {
	texts []string
	slots [][]int
	seen  map[string]int
}

func (m *misses) add(i int, text string) {
	if m.seen == nil {
		m.seen = make(map[string]int)
	}
	if j, ok := m.seen[text]; ok {
		m.slots[j] = append(m.slots[j], i)
		return
	}
	m.seen[text] = len(m.texts)
	m.texts = append(m.texts, text)
	m.slots = append(m.slots, []int{i})
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float32, len(values))
	copy(out, values)
	return out
}
