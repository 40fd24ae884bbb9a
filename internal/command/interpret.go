package command

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"meal-plan-assistant/internal/planner"
)

// ClarifyText is shown when the assistant output carried no usable action.
const ClarifyText = "Sorry, I didn't quite get that. Could you rephrase what you'd like to change?"

// Interpret converts one assembled assistant reply into exactly one Action.
// It never fails: anything that is not a well-formed action becomes a Message.
func Interpret(text string) Action {
	raw, ok := ExtractObject(text)
	if !ok {
		return Message{Text: ClarifyText, Reason: ReasonNoObject}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Message{Text: ClarifyText, Reason: ReasonInvalidJSON}
	}

	f := fields(obj)
	action, err := decode(f)
	if err != nil {
		text := f.str("text")
		if text == "" {
			text = ClarifyText
		}
		reason := ReasonInvalidFields
		if err == errUnknownType {
			reason = ReasonUnknownType
		}
		return Message{Text: text, Reason: reason}
	}
	return action
}

var errUnknownType = fmt.Errorf("unknown action type")

func decode(f fields) (Action, error) {
	switch Kind(strings.ToLower(f.str("type"))) {
	case KindReorder:
		mt, err := f.meal("mealType")
		if err != nil {
			return nil, err
		}
		from, err := f.index("fromIndex")
		if err != nil {
			return nil, err
		}
		to, err := f.index("toIndex")
		if err != nil {
			return nil, err
		}
		return Reorder{MealType: mt, FromIndex: from, ToIndex: to}, nil

	case KindSwap:
		mt, err := f.meal("mealType")
		if err != nil {
			return nil, err
		}
		a, err := f.indexEither("indexA", "fromIndex")
		if err != nil {
			return nil, err
		}
		b, err := f.indexEither("indexB", "toIndex")
		if err != nil {
			return nil, err
		}
		return Swap{MealType: mt, IndexA: a, IndexB: b}, nil

	case KindMove:
		from, err := f.meal("fromMealType")
		if err != nil {
			return nil, err
		}
		fromIndex, err := f.index("fromIndex")
		if err != nil {
			return nil, err
		}
		to, err := f.meal("toMealType")
		if err != nil {
			return nil, err
		}
		toIndex, err := f.optionalIndex("toIndex")
		if err != nil {
			return nil, err
		}
		toDate := f.str("toDate")
		if toDate != "" {
			if err := planner.ValidateDate(toDate); err != nil {
				return nil, err
			}
		}
		return Move{FromMealType: from, FromIndex: fromIndex, ToMealType: to, ToIndex: toIndex, ToDate: toDate}, nil

	case KindReplaceFood:
		mt, err := f.meal("mealType")
		if err != nil {
			return nil, err
		}
		index, err := f.optionalIndex("index")
		if err != nil {
			return nil, err
		}
		mode := ModePercentage
		switch GenerationMode(strings.ToLower(f.str("mode"))) {
		case "", ModePercentage:
		case ModeRemaining:
			mode = ModeRemaining
		default:
			return nil, fmt.Errorf("unknown mode %q", f.str("mode"))
		}
		pct := 100.0
		if _, ok := f["percentage"]; ok {
			v, ok := number(f["percentage"])
			if !ok || v <= 0 {
				return nil, fmt.Errorf("percentage must be a positive number")
			}
			pct = v
		}
		return ReplaceFood{
			MealType:   mt,
			Index:      index,
			Query:      f.str("query"),
			Categories: f.strings("categories"),
			DishType:   f.str("dishType"),
			Mode:       mode,
			Percentage: pct,
		}, nil

	case KindApplySwapOption:
		n, err := f.index("option")
		if err != nil {
			return nil, err
		}
		return ApplySwapOption{Option: n}, nil

	case KindFoodInfo:
		if name := f.str("foodName"); name != "" {
			return FoodInfo{FoodName: name}, nil
		}
		mt, err := f.meal("mealType")
		if err != nil {
			return nil, err
		}
		index, err := f.index("index")
		if err != nil {
			return nil, err
		}
		return FoodInfo{MealType: mt, Index: index}, nil

	case KindMessage:
		text := f.str("text")
		if text == "" {
			return nil, fmt.Errorf("message without text")
		}
		return Message{Text: text}, nil
	}
	return nil, errUnknownType
}

type fields map[string]any

func (f fields) str(name string) string {
	s, _ := f[name].(string)
	return strings.TrimSpace(s)
}

func (f fields) meal(name string) (planner.MealType, error) {
	mt, ok := planner.ParseMealType(strings.ToLower(f.str(name)))
	if !ok {
		return "", fmt.Errorf("%s must be breakfast, lunch or dinner", name)
	}
	return mt, nil
}

func (f fields) index(name string) (int, error) {
	v, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("%s is required", name)
	}
	n, ok := integer(v)
	if !ok {
		return 0, fmt.Errorf("%s must be a whole number", name)
	}
	return n, nil
}

func (f fields) indexEither(primary, fallback string) (int, error) {
	if _, ok := f[primary]; ok {
		return f.index(primary)
	}
	return f.index(fallback)
}

func (f fields) optionalIndex(name string) (*int, error) {
	if v, ok := f[name]; !ok || v == nil {
		return nil, nil
	}
	n, err := f.index(name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// strings accepts either a JSON array of strings or one comma separated string.
func (f fields) strings(name string) []string {
	var out []string
	switch v := f[name].(type) {
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// number coerces JSON numbers and numeric strings.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func integer(v any) (int, bool) {
	f, ok := number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
