package storyapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/storyteller/backend/internal/model/story"
	"github.com/zhouzirui/storyteller/backend/internal/service/step"
)

func TestExtractMessageOrder(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		chain []string
		want  string
	}{
		{"nested validation wins", `{"detail":{"detail":[{"msg":"setting too short"}]}}`, TextMessageChain, "setting too short"},
		{"plain detail", `{"detail":"AI response was not valid JSON."}`, TextMessageChain, "AI response was not valid JSON."},
		{"nested without msg falls back", `{"detail":{"detail":[]}}`, TextMessageChain, "generic"},
		{"detail list is not a string", `{"detail":[{"msg":"x"}]}`, TextMessageChain, "generic"},
		{"empty detail", `{"detail":"  "}`, TextMessageChain, "generic"},
		{"not json", `<html>bad gateway</html>`, TextMessageChain, "generic"},
		{"image ignores detail", `{"detail":"quota exceeded"}`, ImageMessageChain, "generic"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractMessage([]byte(tc.body), tc.chain, "generic"))
		})
	}
}

func newServer(t *testing.T, register func(r chi.Router)) *Client {
	t.Helper()
	r := chi.NewRouter()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestBeginStorySendsFormFields(t *testing.T) {
	var got story.StartStoryRequest
	client := newServer(t, func(r chi.Router) {
		r.Post("/start_story", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(story.StoryResponse{
				Text:        "从前",
				Choices:     []story.Choice{{ID: "A", Text: "跑"}},
				ImagePrompt: "a fox",
				MainQuest:   "找到橡果",
			})
		})
	})

	resp, err := client.BeginStory(context.Background(), step.BeginInput{
		Character:  "a fox",
		Setting:    "a forest",
		TotalSteps: 5,
	})

	require.NoError(t, err)
	assert.Equal(t, "a fox", got.Character)
	assert.Equal(t, "a forest", got.Setting)
	assert.Equal(t, 5, got.TotalSteps)
	assert.Empty(t, got.ImageDataURL)
	assert.Equal(t, "a fox", resp.ImagePrompt)
	assert.Equal(t, "找到橡果", resp.MainQuest)
}

func TestBeginStoryNestedValidationMessage(t *testing.T) {
	client := newServer(t, func(r chi.Router) {
		r.Post("/start_story", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":{"detail":[{"msg":"setting too short"}]}}`))
		})
	})

	_, err := client.BeginStory(context.Background(), step.BeginInput{Character: "x", Setting: "y", TotalSteps: 5})

	var remote *step.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusUnprocessableEntity, remote.Status)
	assert.Equal(t, "setting too short", remote.Message)
}

func TestAdvanceStoryWireShape(t *testing.T) {
	var raw map[string]any
	client := newServer(t, func(r chi.Router) {
		r.Post("/next_step", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			_ = json.NewEncoder(w).Encode(story.StoryResponse{Text: "next", Choices: []story.Choice{}, ImagePrompt: "p"})
		})
	})

	url := "http://x/1.png"
	_, err := client.AdvanceStory(context.Background(), step.AdvanceInput{
		Action: step.Action{FreeText: "climb a tree"},
		History: []story.StepResult{{
			Text:      "first",
			Choices:   []story.Choice{{ID: "A", Text: "run"}},
			ImageURL:  &url,
			MainQuest: "find home",
		}},
		PreviousImageURL: url,
		CurrentStep:      2,
		TotalSteps:       5,
	})
	require.NoError(t, err)

	assert.Equal(t, "climb a tree", raw["user_action"])
	assert.NotContains(t, raw, "choice_id")
	assert.Equal(t, url, raw["previous_image_url"])
	assert.EqualValues(t, 2, raw["current_step"])
	assert.EqualValues(t, 5, raw["total_steps"])

	history, ok := raw["story_history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "first", entry["text"])
	assert.Equal(t, "find home", entry["main_quest"])
	assert.NotContains(t, entry, "image_url")
	assert.NotContains(t, entry, "imageUrl")
}

func TestAdvanceStoryPlainDetail(t *testing.T) {
	client := newServer(t, func(r chi.Router) {
		r.Post("/next_step", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"AI response was not valid JSON."}`))
		})
	})

	_, err := client.AdvanceStory(context.Background(), step.AdvanceInput{Action: step.Action{ChoiceID: "A"}, CurrentStep: 2, TotalSteps: 5})

	var remote *step.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "AI response was not valid JSON.", remote.Message)
}

func TestGenerateImageGenericFailure(t *testing.T) {
	client := newServer(t, func(r chi.Router) {
		r.Post("/generate_image", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"detail":"quota exceeded"}`))
		})
	})

	_, err := client.GenerateImage(context.Background(), step.ImageInput{ImagePrompt: "a fox"})

	var remote *step.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadGateway, remote.Status)
	assert.Equal(t, imageFallback, remote.Message)
}

func TestGenerateImageSendsReference(t *testing.T) {
	var got story.ImageRequest
	client := newServer(t, func(r chi.Router) {
		r.Post("/generate_image", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(story.ImageResponse{ImageURL: "http://x/2.png"})
		})
	})

	url, err := client.GenerateImage(context.Background(), step.ImageInput{
		ImagePrompt:    "a bear",
		ReferenceImage: "data:image/png;base64,AAAA",
	})

	require.NoError(t, err)
	assert.Equal(t, "http://x/2.png", url)
	assert.Equal(t, "a bear", got.ImagePrompt)
	assert.Equal(t, "data:image/png;base64,AAAA", got.InitialImageDataURL)
	assert.Empty(t, got.PreviousImageURL)
}

func TestDeadlineIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	client := newServer(t, func(r chi.Router) {
		r.Post("/start_story", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.BeginStory(ctx, step.BeginInput{Character: "x", Setting: "y", TotalSteps: 5})

	var netErr *step.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUndecodableSuccessIsNetworkError(t *testing.T) {
	client := newServer(t, func(r chi.Router) {
		r.Post("/start_story", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})
	})

	_, err := client.BeginStory(context.Background(), step.BeginInput{Character: "x", Setting: "y", TotalSteps: 5})

	var netErr *step.NetworkError
	require.ErrorAs(t, err, &netErr)
}
