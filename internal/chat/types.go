package chat

import "strings"

const (
	DefaultLanguage      = "en"
	UnknownLocation      = "Unknown Location"
	DefaultCropName      = "Not specified, see the message itself"
	NoDescription        = "No description provided"
	NoCoordinatesError   = "No coordinates provided"
	AnswerConfidence     = 1.0
	conversationTurnMax  = 5
	primaryTemperature   = 0.7
	primaryMaxTokens     = 500
	synthesisTemperature = 0.4
	synthesisMaxTokens   = 1024
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one inbound farmer question. Language is a client hint only;
// the pipeline always trusts detection over it.
type ChatRequest struct {
	Message  string
	CropName string
	Location *Location
	Language string
	History  []ChatTurn
}

// WeatherSnapshot holds current conditions. When Error is set the readings
// are nil and Description is empty.
type WeatherSnapshot struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	WindSpeed   *float64 `json:"wind_speed"`
	Description string   `json:"description"`
	Error       string   `json:"error,omitempty"`
	Details     string   `json:"details,omitempty"`
}

func (w WeatherSnapshot) HasError() bool {
	return strings.TrimSpace(w.Error) != ""
}

// LocalConditions is the joined output of the geocoding and weather lookups.
type LocalConditions struct {
	LocationName string
	Weather      WeatherSnapshot
	Degraded     []string
}

type EnrichedContext struct {
	CropName     string
	LocationName string
	Weather      WeatherSnapshot
	Conversation []ChatTurn
}

// NewEnrichedContext bounds the client history to the most recent turns and
// appends the current (English) message as the final user turn.
func NewEnrichedContext(cropName string, cond LocalConditions, history []ChatTurn, current string) EnrichedContext {
	crop := strings.TrimSpace(cropName)
	if crop == "" {
		crop = DefaultCropName
	}
	locationName := strings.TrimSpace(cond.LocationName)
	if locationName == "" {
		locationName = UnknownLocation
	}

	turns := make([]ChatTurn, 0, len(history))
	for _, turn := range history {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		turns = append(turns, ChatTurn{Role: role, Content: content})
	}
	if len(turns) > conversationTurnMax {
		turns = turns[len(turns)-conversationTurnMax:]
	}
	window := make([]ChatTurn, 0, len(turns)+1)
	window = append(window, turns...)
	window = append(window, ChatTurn{Role: "user", Content: strings.TrimSpace(current)})

	return EnrichedContext{
		CropName:     crop,
		LocationName: locationName,
		Weather:      cond.Weather,
		Conversation: window,
	}
}

// PriorTurns returns the conversation window without the current message.
func (c EnrichedContext) PriorTurns() []ChatTurn {
	if len(c.Conversation) == 0 {
		return nil
	}
	prior := c.Conversation[:len(c.Conversation)-1]
	if len(prior) > conversationTurnMax {
		prior = prior[len(prior)-conversationTurnMax:]
	}
	return prior
}

type StructuredAnswer struct {
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations"`
}

type WeatherData struct {
	Location    string   `json:"location"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Description string   `json:"description"`
	WindSpeed   *float64 `json:"wind_speed"`
}

type Sources struct {
	OriginalLanguage        string           `json:"original_language"`
	AdviceText              string           `json:"advice_text"`
	EnglishStructuredAnswer StructuredAnswer `json:"english_structured_answer"`
}

type ChatResponse struct {
	Query           string      `json:"query"`
	Response        string      `json:"response"`
	Confidence      float64     `json:"confidence"`
	Recommendations []string    `json:"recommendations"`
	AudioResponse   string      `json:"audio_response"`
	WeatherData     WeatherData `json:"weather_data"`
	MarketData      any         `json:"market_data"`
	Sources         Sources     `json:"sources"`
}

func newWeatherData(locationName string, w WeatherSnapshot) WeatherData {
	data := WeatherData{Location: locationName}
	if w.HasError() {
		return data
	}
	data.Temperature = w.Temperature
	data.Humidity = w.Humidity
	data.Description = w.Description
	data.WindSpeed = w.WindSpeed
	return data
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
