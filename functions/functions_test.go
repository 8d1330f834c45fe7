package functions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/textflow/types"
)

func TestBuiltin_CoversAllFunctionTypes(t *testing.T) {
	handlers := Builtin()
	for _, ft := range []types.FunctionType{
		types.FunctionTranslate,
		types.FunctionExplain,
		types.FunctionSummarize,
		types.FunctionAsk,
		types.FunctionOptimize,
	} {
		assert.Contains(t, handlers, ft)
	}
}

func TestTranslate_TargetLanguage(t *testing.T) {
	msgs, err := buildTranslate(types.Request{
		Text:    "bonjour",
		Options: map[string]string{OptTargetLanguage: "German"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "German")
	assert.Equal(t, "bonjour", msgs[1].Content)
}

func TestTranslate_DefaultsTargetLanguage(t *testing.T) {
	msgs, err := buildTranslate(types.Request{Text: "bonjour"})
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Content, "English")
}

func TestBuiltin_EmptyTextRejected(t *testing.T) {
	for name, h := range Builtin() {
		t.Run(string(name), func(t *testing.T) {
			_, err := h.BuildPrompt(types.Request{Text: "   "})
			require.Error(t, err)
			assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
		})
	}
}

func TestAsk_RequiresQuestion(t *testing.T) {
	_, err := buildAsk(types.Request{Text: "some text"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	msgs, err := buildAsk(types.Request{
		Text:    "some text",
		Options: map[string]string{OptQuestion: "what is it?"},
	})
	require.NoError(t, err)
	assert.Contains(t, msgs[1].Content, "what is it?")
	assert.Contains(t, msgs[1].Content, "some text")
}

func TestRegistry_RenderPlaceholders(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(Template{
		Name:   "pirate",
		System: "Answer in {style} style.",
		User:   "Rewrite this: {text}",
	}))

	msgs, err := reg.Handler().BuildPrompt(types.Request{
		FunctionType: types.FunctionCustom,
		FunctionName: "pirate",
		Text:         "hello there",
		Options:      map[string]string{"style": "pirate"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Answer in pirate style.", msgs[0].Content)
	assert.Equal(t, "Rewrite this: hello there", msgs[1].Content)
}

func TestRegistry_UnknownTemplate(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Handler().BuildPrompt(types.Request{FunctionName: "missing", Text: "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownFunction, types.GetErrorCode(err))
}

func TestRegistry_ValidatesTemplates(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Add(Template{Name: "", User: "{text}"}))
	assert.Error(t, reg.Add(Template{Name: "no-placeholder", User: "static prompt"}))
	assert.NoError(t, reg.Add(Template{Name: "ok", User: "do {text}"}))

	assert.Equal(t, []string{"ok"}, reg.Names())
	reg.Remove("ok")
	assert.Empty(t, reg.Names())
}
