package survey

// Score produces one Answer per item in ordinal order plus the total score.
//
// An input matches an item when its questionId equals the item id or its
// explicit index equals the item ordinal; the first matching input wins. Inputs
// that carry neither field are matched by position. Missing answers and
// negative option indexes are recorded as Unanswered with score 0. Other
// indexes are clamped into 0..ItemScale.
func Score(q Questionnaire, inputs []AnswerInput) ([]Answer, int) {
	answers := make([]Answer, len(q.Items))
	total := 0
	for i, item := range q.Items {
		optionIndex := Unanswered
		if match, ok := findInput(inputs, item, i); ok && match.OptionIndex != nil && *match.OptionIndex >= 0 {
			optionIndex = *match.OptionIndex
		}
		answer := Answer{
			QuestionID:  item.ID,
			Prompt:      item.Prompt,
			OptionIndex: optionIndex,
			OptionText:  NotAnsweredText,
			Score:       scoreFor(optionIndex),
		}
		if optionIndex >= 0 && optionIndex < len(item.Options) {
			answer.OptionText = item.Options[optionIndex]
		}
		answers[i] = answer
		total += answer.Score
	}
	return answers, total
}

func findInput(inputs []AnswerInput, item Item, ordinal int) (AnswerInput, bool) {
	for _, in := range inputs {
		if (in.QuestionID != "" && in.QuestionID == item.ID) || (in.Index != nil && *in.Index == ordinal) {
			return in, true
		}
	}
	if ordinal < len(inputs) {
		in := inputs[ordinal]
		if in.QuestionID == "" && in.Index == nil {
			return in, true
		}
	}
	return AnswerInput{}, false
}

func scoreFor(optionIndex int) int {
	switch {
	case optionIndex < 0:
		return 0
	case optionIndex > ItemScale:
		return ItemScale
	default:
		return optionIndex
	}
}
