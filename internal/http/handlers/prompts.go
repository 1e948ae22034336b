package handlers

import "net/http"

type enhancePromptRequest struct {
	Prompt     string `json:"prompt" validate:"required,max=500"`
	TargetType string `json:"target_type" validate:"omitempty,oneof=image video"`
}

type promptResponse struct {
	Success        bool   `json:"success"`
	EnhancedPrompt string `json:"enhanced_prompt"`
}

func (a *App) PromptEnhance(w http.ResponseWriter, r *http.Request) {
	var req enhancePromptRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.TargetType == "" {
		req.TargetType = "image"
	}

	enhanced, err := a.Prompts.Enhance(r.Context(), req.Prompt, req.TargetType)
	if err != nil {
		a.internalError(w, "prompt enhancement failed", err)
		return
	}
	a.json(w, http.StatusOK, promptResponse{Success: true, EnhancedPrompt: enhanced})
}
