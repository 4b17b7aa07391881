package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	storymodel "github.com/zhouzirui/storyteller/backend/internal/model/story"
)

// ErrInvalidOutput 表示模型没有返回约定的 JSON 对象。
var ErrInvalidOutput = errors.New("story model output is not valid json")

// draft 是模型返回的一幕故事。
type draft struct {
	Text        string              `json:"text"`
	ImagePrompt string              `json:"image_prompt"`
	Choices     []storymodel.Choice `json:"choices"`
	MainQuest   string              `json:"main_quest"`

	// unusableChoices 表示模型给了选项但全部缺少文本。
	unusableChoices bool
}

// narrator 通过 eino chain 调用文本大模型。
type narrator struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *zap.Logger
}

func newNarrator(ctx context.Context, chatModel model.BaseChatModel, logger *zap.Logger) (*narrator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	// 上传的主角图片作为独立的多模态消息插在提问之前。
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("attachments", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile story chain: %w", err)
	}

	return &narrator{chain: runnable, logger: logger}, nil
}

// narrate 生成一幕故事。picture 为空时只发送文本。
func (n *narrator) narrate(ctx context.Context, query string, picture *Picture) (draft, error) {
	input := map[string]any{
		"system":      systemPrompt,
		"attachments": attachmentsFor(picture),
		"query":       query,
	}

	msg, err := n.chain.Invoke(ctx, input)
	if err != nil {
		return draft{}, fmt.Errorf("failed to run story chain: %w", err)
	}

	d, err := parseDraft(msg.Content)
	if err != nil {
		n.logger.Warn("story model output rejected",
			zap.Error(err),
			zap.String("raw", truncate(msg.Content, 512)),
		)
		return draft{}, err
	}

	n.logger.Info("story part generated",
		zap.Int("length", len(d.Text)),
		zap.Int("choices", len(d.Choices)),
	)
	return d, nil
}

func attachmentsFor(picture *Picture) []*schema.Message {
	if picture == nil {
		return nil
	}
	return []*schema.Message{{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: picture.DataURL()},
		}},
	}}
}

// parseDraft 截取最外层 JSON 对象并校验必填字段。缺少 id 的选项按位置补齐。
func parseDraft(content string) (draft, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return draft{}, fmt.Errorf("%w: missing json object", ErrInvalidOutput)
	}

	var d draft
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &d); err != nil {
		return draft{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	d.Text = strings.TrimSpace(d.Text)
	d.ImagePrompt = strings.TrimSpace(d.ImagePrompt)
	d.MainQuest = strings.TrimSpace(d.MainQuest)
	if d.Text == "" {
		return draft{}, fmt.Errorf("%w: empty text", ErrInvalidOutput)
	}

	choices := make([]storymodel.Choice, 0, len(d.Choices))
	for _, c := range d.Choices {
		c.ID = strings.TrimSpace(c.ID)
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		if c.ID == "" {
			c.ID = choiceID(len(choices))
		}
		choices = append(choices, c)
	}
	d.unusableChoices = len(d.Choices) > 0 && len(choices) == 0
	d.Choices = choices
	return d, nil
}

// choiceID 按位置生成 A、B、C… 形式的选项 id。
func choiceID(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("%d", i+1)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
