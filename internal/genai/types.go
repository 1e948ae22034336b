package genai

// Blob carries raw media bytes plus their MIME type.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Part is one element of a chat message: text or inline media.
type Part struct {
	Text   string
	Inline *Blob
}

// Reply is the normalized result of one chat exchange.
type Reply struct {
	Text   string
	Images []Blob
}

// GenerationConfig shapes image output for a chat session.
type GenerationConfig struct {
	AspectRatio     string
	Resolution      string
	UseGoogleSearch bool
}

// VideoConfig shapes a video generation request.
type VideoConfig struct {
	AspectRatio     string
	Resolution      string
	DurationSeconds string
	LastFrame       *Blob
	SampleCount     int
}

// VideoRef is an opaque reference to a generated video artifact. It can be
// downloaded or fed back into a follow-up extension request.
type VideoRef struct {
	URI string
}

// Operation is a long-running video generation handle. Polling is idempotent;
// the final state carries either artifact references or an error message.
type Operation struct {
	Name       string
	Done       bool
	Videos     []VideoRef
	ErrMessage string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiTool struct {
	GoogleSearch *geminiGoogleSearch `json:"google_search,omitempty"`
}

type geminiGoogleSearch struct{}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents          []geminiContent         `json:"contents"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

type videoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

type videoSource struct {
	URI string `json:"uri,omitempty"`
}

type videoInstance struct {
	Prompt    string       `json:"prompt,omitempty"`
	Image     *videoImage  `json:"image,omitempty"`
	LastFrame *videoImage  `json:"lastFrame,omitempty"`
	Video     *videoSource `json:"video,omitempty"`
}

type videoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	DurationSeconds string `json:"durationSeconds,omitempty"`
	SampleCount     int    `json:"sampleCount,omitempty"`
}

type predictLongRunningRequest struct {
	Instances  []videoInstance  `json:"instances"`
	Parameters *videoParameters `json:"parameters,omitempty"`
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Error    *struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse *struct {
			GeneratedSamples []struct {
				Video videoSource `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse,omitempty"`
	} `json:"response,omitempty"`
}
