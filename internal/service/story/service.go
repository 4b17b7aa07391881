package story

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	storymodel "github.com/zhouzirui/storyteller/backend/internal/model/story"
)

var (
	// ErrTextUnavailable 表示未配置文本模型。
	ErrTextUnavailable = errors.New("story model unavailable")
	// ErrImageUnavailable 表示未配置图片模型。
	ErrImageUnavailable = errors.New("image model unavailable")
)

// ValidationError 表示请求体不满足约束，对应 422。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// Service 是故事生成后端：开篇、续写与插图。
type Service struct {
	narrator    *narrator
	illustrator *Illustrator
	logger      *zap.Logger
}

// NewService 组装服务。chatModel 或 illustrator 为空时对应的接口返回不可用错误。
func NewService(ctx context.Context, chatModel model.BaseChatModel, illustrator *Illustrator, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("story")

	s := &Service{illustrator: illustrator, logger: logger}
	if chatModel != nil {
		n, err := newNarrator(ctx, chatModel, logger)
		if err != nil {
			return nil, err
		}
		s.narrator = n
	}
	return s, nil
}

// TextEnabled 表示是否可以生成故事文本。
func (s *Service) TextEnabled() bool {
	return s.narrator != nil
}

// ImageEnabled 表示是否可以生成插图。
func (s *Service) ImageEnabled() bool {
	return s.illustrator != nil
}

// ValidateStart 校验开篇请求：场景必填，幕数至少为 1，主角描述和主角图片至少提供一个。
func ValidateStart(req storymodel.StartStoryRequest) error {
	if strings.TrimSpace(req.Setting) == "" {
		return invalid("setting 不能为空")
	}
	if req.TotalSteps < 1 {
		return invalid("total_steps 必须大于等于 1")
	}
	if strings.TrimSpace(req.Character) == "" && strings.TrimSpace(req.ImageDataURL) == "" {
		return invalid("必须提供 character 或 image_data_url 中的一个来指定故事主角。")
	}
	return nil
}

// ValidateNext 校验续写请求：choice_id 与 user_action 必须且只能提供一个。
func ValidateNext(req storymodel.NextStepRequest) error {
	choice := req.ChoiceID != nil
	action := req.UserAction != nil && strings.TrimSpace(*req.UserAction) != ""
	switch {
	case choice && action:
		return invalid("不能同时提供 choice_id 和 user_action")
	case !choice && !action:
		return invalid("必须提供 choice_id 或 user_action 中的一个")
	}
	if req.TotalSteps < 1 {
		return invalid("total_steps 必须大于等于 1")
	}
	if req.CurrentStep < 1 {
		return invalid("current_step 必须大于等于 1")
	}
	return nil
}

// Begin 生成故事开篇。
func (s *Service) Begin(ctx context.Context, req storymodel.StartStoryRequest) (storymodel.StoryResponse, error) {
	if err := ValidateStart(req); err != nil {
		return storymodel.StoryResponse{}, err
	}
	if s.narrator == nil {
		return storymodel.StoryResponse{}, ErrTextUnavailable
	}

	var picture *Picture
	if strings.TrimSpace(req.ImageDataURL) != "" {
		p, err := DecodePicture(req.ImageDataURL)
		if err != nil {
			return storymodel.StoryResponse{}, invalid(fmt.Sprintf("image_data_url 无法解析: %v", err))
		}
		picture = p
	}

	s.logger.Info("start story requested",
		zap.Bool("with_image", picture != nil),
		zap.Int("total_steps", req.TotalSteps),
	)

	d, err := s.narrator.narrate(ctx, buildOpeningPrompt(req), picture)
	if err != nil {
		return storymodel.StoryResponse{}, err
	}
	if req.TotalSteps == 1 {
		d.Choices = []storymodel.Choice{}
	} else if err := checkChoices(d); err != nil {
		return storymodel.StoryResponse{}, err
	}
	return toResponse(d, d.MainQuest), nil
}

// Next 根据玩家行动续写下一幕。最后一幕的选项被强制清空。
func (s *Service) Next(ctx context.Context, req storymodel.NextStepRequest) (storymodel.StoryResponse, error) {
	if err := ValidateNext(req); err != nil {
		return storymodel.StoryResponse{}, err
	}
	if s.narrator == nil {
		return storymodel.StoryResponse{}, ErrTextUnavailable
	}

	stage := StageOf(req.CurrentStep, req.TotalSteps)
	s.logger.Info("next step requested",
		zap.Int("current_step", req.CurrentStep),
		zap.Int("total_steps", req.TotalSteps),
		zap.Stringer("stage", stage),
		zap.Bool("free_action", req.UserAction != nil),
	)

	d, err := s.narrator.narrate(ctx, buildContinuationPrompt(req), nil)
	if err != nil {
		return storymodel.StoryResponse{}, err
	}
	if stage == StageFinal {
		d.Choices = []storymodel.Choice{}
	} else if err := checkChoices(d); err != nil {
		return storymodel.StoryResponse{}, err
	}
	return toResponse(d, MainQuestOf(req.StoryHistory)), nil
}

// Illustrate 为一幕生成插图。
func (s *Service) Illustrate(ctx context.Context, req storymodel.ImageRequest) (string, error) {
	if strings.TrimSpace(req.ImagePrompt) == "" {
		return "", invalid("image_prompt 不能为空")
	}
	if s.illustrator == nil {
		return "", ErrImageUnavailable
	}

	var initial *Picture
	if strings.TrimSpace(req.InitialImageDataURL) != "" {
		p, err := DecodePicture(req.InitialImageDataURL)
		if err != nil {
			return "", invalid(fmt.Sprintf("initial_image_data_url 无法解析: %v", err))
		}
		initial = p
	}

	return s.illustrator.Illustrate(ctx, IllustrateInput{
		Scene:            req.ImagePrompt,
		PreviousImageURL: req.PreviousImageURL,
		Initial:          initial,
	})
}

// checkChoices 拒绝非结局幕里无法使用的选项，空选项列表只能表示故事结束。
func checkChoices(d draft) error {
	if d.unusableChoices {
		return fmt.Errorf("%w: no usable choices", ErrInvalidOutput)
	}
	return nil
}

func toResponse(d draft, quest string) storymodel.StoryResponse {
	choices := d.Choices
	if choices == nil {
		choices = []storymodel.Choice{}
	}
	return storymodel.StoryResponse{
		Text:        d.Text,
		Choices:     choices,
		ImagePrompt: d.ImagePrompt,
		MainQuest:   quest,
	}
}
