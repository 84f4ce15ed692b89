package domain

import "fmt"

// PlanPrices задаёт закрытый набор тарифов: длительность в днях и цена в звёздах.
var PlanPrices = map[int]int{
	7:  100,
	14: 180,
	30: 300,
}

// ValidPlan проверяет, что длительность входит в закрытый набор тарифов.
func ValidPlan(days int) bool {
	_, ok := PlanPrices[days]
	return ok
}

// postingSlots — фиксированное соответствие частоты публикаций и времён.
// Других расписаний для автопостинга не существует.
var postingSlots = map[int][]string{
	1: {"09:00"},
	2: {"09:00", "21:00"},
	3: {"09:00", "15:00", "21:00"},
}

// SlotsForFrequency возвращает список времён публикации для частоты 1–3.
func SlotsForFrequency(postsPerDay int) ([]string, error) {
	slots, ok := postingSlots[postsPerDay]
	if !ok {
		return nil, fmt.Errorf("недопустимая частота публикаций: %d", postsPerDay)
	}
	out := make([]string, len(slots))
	copy(out, slots)
	return out, nil
}

// ValidateSlots проверяет, что список времён в точности совпадает с
// фиксированным расписанием для указанной частоты.
func ValidateSlots(postsPerDay int, times []string) error {
	expected, err := SlotsForFrequency(postsPerDay)
	if err != nil {
		return err
	}
	if len(times) != len(expected) {
		return fmt.Errorf("расписание не соответствует частоте %d", postsPerDay)
	}
	for i, t := range times {
		if t != expected[i] {
			return fmt.Errorf("недопустимое время %q для частоты %d", t, postsPerDay)
		}
	}
	return nil
}
