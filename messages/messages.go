package messages

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/google/go-jsonnet"
)

//go:embed jsonnet/*
var messages embed.FS

const templateDir = "jsonnet"

// MessageProvider renders the embedded jsonnet message templates. It is safe
// for concurrent use.
type MessageProvider struct {
	// the vm holds per-evaluation TLA state
	mu sync.Mutex
	vm *jsonnet.VM
}

func NewMessageProvider() (*MessageProvider, error) {
	m := &MessageProvider{
		vm: jsonnet.MakeVM(),
	}

	imports := make(map[string]jsonnet.Contents)
	err := fs.WalkDir(messages, templateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, err := messages.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		imports[strings.TrimPrefix(path, templateDir+"/")] = jsonnet.MakeContentsRaw(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	m.vm.Importer(&jsonnet.MemoryImporter{
		Data: imports,
	})

	_, _, err = m.vm.ImportData("anonymous", "index.jsonnet")
	if err != nil {
		return nil, fmt.Errorf("importing index: %w", err)
	}

	return m, nil
}

// ExecuteMessage renders the template named messageName with data marshaled
// to JSON, returning the rendered JSON document.
func (m *MessageProvider) ExecuteMessage(messageName string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshaling data: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.vm.TLAVar("message_key", messageName)
	m.vm.TLACode("data", string(jsonData))
	defer m.vm.TLAReset()

	jsonOut, err := m.vm.EvaluateAnonymousSnippet("anonymous", "function(message_key, data) (import 'index.jsonnet')[message_key](data)")
	if err != nil {
		return "", fmt.Errorf("evaluating %s: %w", messageName, err)
	}

	return jsonOut, nil
}
