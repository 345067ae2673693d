package videos

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"vidhub/internal/apperr"
	"vidhub/internal/storage"
)

// UpdatableFields is the complete set of fields an owner may change. Any
// other submitted key is ignored.
var UpdatableFields = []string{"title", "description", "isPublish", "duration"}

func buildUpdate(fields map[string]any) (storage.VideoUpdate, error) {
	var update storage.VideoUpdate
	for _, name := range UpdatableFields {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		switch name {
		case "title":
			title, err := stringField(name, raw)
			if err != nil {
				return storage.VideoUpdate{}, err
			}
			title = strings.TrimSpace(title)
			if title == "" {
				return storage.VideoUpdate{}, apperr.InvalidInput("title cannot be empty")
			}
			update.Title = &title
		case "description":
			description, err := stringField(name, raw)
			if err != nil {
				return storage.VideoUpdate{}, err
			}
			description = strings.TrimSpace(description)
			update.Description = &description
		case "isPublish":
			publish, err := boolField(name, raw)
			if err != nil {
				return storage.VideoUpdate{}, err
			}
			update.IsPublish = &publish
		case "duration":
			duration := durationField(raw)
			update.Duration = &duration
		}
	}
	return update, nil
}

func stringField(name string, raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", apperr.InvalidInput(fmt.Sprintf("%s must be a string", name))
	}
}

func boolField(name string, raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return parsed, nil
		}
	}
	return false, apperr.InvalidInput(fmt.Sprintf("%s must be a boolean", name))
}

func durationField(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0
		}
		return v
	case int:
		return coerceDuration(strconv.Itoa(v))
	case int64:
		return coerceDuration(strconv.FormatInt(v, 10))
	case string:
		return coerceDuration(v)
	default:
		return 0
	}
}
