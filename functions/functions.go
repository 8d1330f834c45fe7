// Package functions provides the built-in text-processing functions and
// the user-defined template registry. Each function renders a request
// into the chat messages sent upstream; the dispatcher owns everything
// after that.
package functions

import (
	"fmt"
	"strings"

	"github.com/BaSui01/textflow/dispatch"
	"github.com/BaSui01/textflow/types"
)

// Option keys recognized by the built-in functions.
const (
	OptTargetLanguage = "target_language"
	OptTone           = "tone"
	OptQuestion       = "question"
)

const defaultTargetLanguage = "English"

// Builtin returns the handlers for the five built-in function types.
func Builtin() map[types.FunctionType]dispatch.Handler {
	return map[types.FunctionType]dispatch.Handler{
		types.FunctionTranslate: dispatch.HandlerFunc(buildTranslate),
		types.FunctionExplain:   dispatch.HandlerFunc(buildExplain),
		types.FunctionSummarize: dispatch.HandlerFunc(buildSummarize),
		types.FunctionAsk:       dispatch.HandlerFunc(buildAsk),
		types.FunctionOptimize:  dispatch.HandlerFunc(buildOptimize),
	}
}

// RegisterBuiltin registers every built-in handler on the dispatcher.
func RegisterBuiltin(d *dispatch.Dispatcher) {
	for ft, h := range Builtin() {
		d.Register(ft, h)
	}
}

func requireText(req types.Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return types.NewError(types.ErrInvalidRequest, "request text is empty")
	}
	return nil
}

func buildTranslate(req types.Request) ([]types.Message, error) {
	if err := requireText(req); err != nil {
		return nil, err
	}
	target := req.Options[OptTargetLanguage]
	if target == "" {
		target = defaultTargetLanguage
	}
	return []types.Message{
		{Role: types.RoleSystem, Content: fmt.Sprintf(
			"You are a professional translator. Translate the user's text into %s. "+
				"Preserve formatting, tone, and technical terms. Output only the translation.", target)},
		{Role: types.RoleUser, Content: req.Text},
	}, nil
}

func buildExplain(req types.Request) ([]types.Message, error) {
	if err := requireText(req); err != nil {
		return nil, err
	}
	return []types.Message{
		{Role: types.RoleSystem, Content: "You are a patient teacher. Explain the user's text in plain language, " +
			"defining any jargon. Keep the explanation short and concrete."},
		{Role: types.RoleUser, Content: req.Text},
	}, nil
}

func buildSummarize(req types.Request) ([]types.Message, error) {
	if err := requireText(req); err != nil {
		return nil, err
	}
	return []types.Message{
		{Role: types.RoleSystem, Content: "Summarize the user's text. Keep every key point, drop everything else, " +
			"and answer in the language of the input."},
		{Role: types.RoleUser, Content: req.Text},
	}, nil
}

func buildAsk(req types.Request) ([]types.Message, error) {
	if err := requireText(req); err != nil {
		return nil, err
	}
	question := req.Options[OptQuestion]
	if strings.TrimSpace(question) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "ask requires the question option")
	}
	return []types.Message{
		{Role: types.RoleSystem, Content: "Answer the user's question about the provided text. " +
			"Base the answer on the text alone and say so when it does not contain the answer."},
		{Role: types.RoleUser, Content: fmt.Sprintf("Text:\n%s\n\nQuestion: %s", req.Text, question)},
	}, nil
}

func buildOptimize(req types.Request) ([]types.Message, error) {
	if err := requireText(req); err != nil {
		return nil, err
	}
	tone := req.Options[OptTone]
	system := "Improve the user's text: fix grammar, tighten phrasing, keep the original meaning and language. " +
		"Output only the revised text."
	if tone != "" {
		system += fmt.Sprintf(" Match a %s tone.", tone)
	}
	return []types.Message{
		{Role: types.RoleSystem, Content: system},
		{Role: types.RoleUser, Content: req.Text},
	}, nil
}
