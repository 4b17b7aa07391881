package story

import (
	"fmt"
	"strings"

	storymodel "github.com/zhouzirui/storyteller/backend/internal/model/story"
)

const (
	defaultMainQuest  = "继续探索"
	defaultChoiceText = "继续"
)

// systemPrompt 约束讲述者的口吻与输出格式。
const systemPrompt = `你是一个富有想象力的互动故事讲述者。你的任务是根据用户的【选择】或【自定义的行动】，继续编织一个引人入胜的故事。
如果用户提供了一张图片，请你以图片中的主要物体（比如人物的照片、小动物、小玩具等）作为故事的主角。如果用户同时提供了主角名称，请将这个名称赋予图片中的主角。
你的讲述对象是4-9岁的儿童。你必须用给小朋友讲故事的语气来创作。
你的故事必须通俗易懂，适合小朋友阅读，不要出现复杂难懂的语言。
你的故事中不能出现暴力、恐怖、血腥等不适宜的内容。你的语言必须是中文。
你的故事最好具有教育意义。
你的回答必须严格遵循一个 JSON 格式。这个 JSON 对象必须包含以下【四个】键：
1. "text": (字符串) 故事的下一段描述，必须紧密衔接上文，并【体现用户行动的结果】。
2. "image_prompt": (字符串) 一句英文的、详细描述性的、儿童插画风格的提示词(kids story book illustration style)，概括 "text" 中的场景，确保主角特征明确，并与图片中的主角保持一致。
3. "choices": (数组) 一个包含两个故事选项的数组。每个选项都是一个对象，包含 "id" (A 或 B) 和 "text" (选项的描述文本)。
4. "main_quest": (字符串) 必须是一个明确的、可执行的、贯穿整个故事的核心任务。例如：“帮助小松鼠奇奇找到回家的三颗魔法橡果”或“收集五种颜色的花瓣来治愈生病的精灵女王”。它必须是一个清晰的目标，而不是一个模糊的主题。
不要在你的回答中包含任何解释或除了这个JSON对象之外的任何其他文本。`

// ImageConsistencyRule 前置于每条插图提示词，要求模型沿用参考图中的主角形象。
const ImageConsistencyRule = "you should maintain visual consistency for the main character based on the reference image provided. The character's appearance, features, clothing, and colors must be exactly the same. Now, generate the following scene:"

// Stage 表示当前幕在整个故事中的叙事阶段。
type Stage int

const (
	StageDevelopment Stage = iota
	StageClimax
	StageFinal
)

func (s Stage) String() string {
	switch s {
	case StageFinal:
		return "final"
	case StageClimax:
		return "climax"
	default:
		return "development"
	}
}

// StageOf 根据进度判断叙事阶段：最后一幕（及越界的幕）收尾，进度达到四分之三进入高潮。
func StageOf(current, total int) Stage {
	switch {
	case current >= total:
		return StageFinal
	case float64(current) >= float64(total)*0.75:
		return StageClimax
	default:
		return StageDevelopment
	}
}

// buildOpeningPrompt 构造开篇提示词。上传图片时要求模型以图中主体为主角。
func buildOpeningPrompt(req storymodel.StartStoryRequest) string {
	character := strings.TrimSpace(req.Character)
	setting := strings.TrimSpace(req.Setting)

	var b strings.Builder
	switch {
	case strings.TrimSpace(req.ImageDataURL) != "" && character != "":
		fmt.Fprintf(&b, "这是一张用户上传的图片，请以图片中的主要物体或人物作为故事主角，并将主角命名为 '%s'。", character)
		fmt.Fprintf(&b, "在 '%s' 场景下，为这个主角创作一个引人入胜的儿童故事开篇。", setting)
	case strings.TrimSpace(req.ImageDataURL) != "":
		b.WriteString("这是一张用户上传的图片，请以图片中的主要物体或人物作为故事主角。")
		fmt.Fprintf(&b, "在 '%s' 场景下，为这个主角创作一个引人入胜的儿童故事开篇。", setting)
	default:
		fmt.Fprintf(&b, "请为一个关于主角 '%s' 在 '%s' 场景下的儿童故事，创作一个引人入胜的开篇。", character, setting)
	}
	fmt.Fprintf(&b, "这个故事的总长度预计为【%d幕】。", req.TotalSteps)
	b.WriteString("请确保开篇能够建立一个清晰的主线任务，并为后续发展留下悬念。")
	return b.String()
}

// MainQuestOf 返回开篇确立的主线任务。
func MainQuestOf(history []storymodel.HistoryEntry) string {
	if len(history) == 0 {
		return defaultMainQuest
	}
	if quest := strings.TrimSpace(history[0].MainQuest); quest != "" {
		return quest
	}
	return defaultMainQuest
}

// actionLine 描述主角这一步的行动。选项文本从最近一幕中查找，找不到时使用“继续”。
func actionLine(req storymodel.NextStepRequest) string {
	if req.UserAction != nil && strings.TrimSpace(*req.UserAction) != "" {
		return fmt.Sprintf("接下来，主角决定自己行动，他/她想：'%s'。", strings.TrimSpace(*req.UserAction))
	}

	choiceText := defaultChoiceText
	if req.ChoiceID != nil && len(req.StoryHistory) > 0 {
		last := req.StoryHistory[len(req.StoryHistory)-1]
		for _, c := range last.Choices {
			if c.ID == *req.ChoiceID {
				choiceText = c.Text
				break
			}
		}
	}
	return fmt.Sprintf("在故事的最新发展中，主角选择了选项：'%s'。", choiceText)
}

func stageGuidance(stage Stage, current, total int, quest string) string {
	switch stage {
	case StageFinal:
		return fmt.Sprintf("这是故事的【最后一幕】。故事的核心任务是：“%s”。\n"+
			"请你必须围绕这个核心任务，创作一个圆满、清晰的结局，确保主角最终完成了这个任务，并解决所有相关悬念。\n"+
			"在你的JSON回答中，\"choices\"字段必须是一个【空数组 `[]`】，因为故事已经结束。", quest)
	case StageClimax:
		return fmt.Sprintf("现在是故事的第【%d/%d】幕，剧情已接近高潮。\n"+
			"请创作一段紧张、关键的情节，将故事推向顶点，为最终解决主线任务做准备。", current, total)
	default:
		return fmt.Sprintf("现在是故事的第【%d/%d】幕，剧情正在发展阶段。\n"+
			"请创作一段承上启下的情节。最重要的是，这一步必须让主角在完成主线任务：“%s” 的道路上【取得明确的进展】。\n"+
			"可以引入一个帮助解决主线的线索，或者克服一个通往主线的小障碍。", current, total, quest)
	}
}

// buildContinuationPrompt 构造续写提示词：故事梗概、主角行动、主线指令和阶段指令。
func buildContinuationPrompt(req storymodel.NextStepRequest) string {
	quest := MainQuestOf(req.StoryHistory)

	var b strings.Builder
	b.WriteString("这是已经发生的故事梗概，请你续写：\n\n")
	for i, part := range req.StoryHistory {
		fmt.Fprintf(&b, "第 %d 幕: %s\n", i+1, part.Text)
	}
	b.WriteString("\n")
	b.WriteString(actionLine(req))
	b.WriteString("\n\n--- 核心任务指令 (最重要！) ---\n")
	fmt.Fprintf(&b, "请始终围绕故事主线：“%s”。\n", quest)
	b.WriteString("--- 当前阶段叙事指令 ---\n")
	b.WriteString(stageGuidance(StageOf(req.CurrentStep, req.TotalSteps), req.CurrentStep, req.TotalSteps, quest))
	return b.String()
}

// illustrationPrompt 为场景描述加上角色一致性规则。
func illustrationPrompt(scene string) string {
	return ImageConsistencyRule + " " + strings.TrimSpace(scene)
}
