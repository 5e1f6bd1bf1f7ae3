package card

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

// Bundled card templates.
const (
	TemplateInstall  = "justintimeinstallation.json"
	TemplateNotReady = "botnotready.json"
)

//go:embed resources/*.json
var resources embed.FS

// Template loads a bundled adaptive card by file name.
func Template(name string) (protocol.Attachment, error) {
	data, err := resources.ReadFile(path.Join("resources", name))
	if err != nil {
		return protocol.Attachment{}, fmt.Errorf("card: template %s: %w", name, err)
	}
	if !json.Valid(data) {
		return protocol.Attachment{}, fmt.Errorf("card: template %s: invalid JSON", name)
	}
	return protocol.Attachment{
		ContentType: protocol.ContentTypeAdaptiveCard,
		Content:     json.RawMessage(data),
	}, nil
}

// InstallTask asks the user to add the app to the conversation.
func InstallTask() (protocol.TaskInfo, error) {
	att, err := Template(TemplateInstall)
	if err != nil {
		return protocol.TaskInfo{}, err
	}
	return protocol.TaskInfo{Card: att, Height: 200, Width: 400, Title: "App Installation"}, nil
}

// NotReadyTask tells the user the app cannot look them up in this chat yet.
func NotReadyTask() (protocol.TaskInfo, error) {
	att, err := Template(TemplateNotReady)
	if err != nil {
		return protocol.TaskInfo{}, err
	}
	return protocol.TaskInfo{Card: att, Height: 200, Width: 400, Title: "Essembi Is Not Ready"}, nil
}
