// Package schedule определяет, работает ли заведение в заданный момент.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/ishop/internal/model"
)

const (
	// AllDay обозначает окно круглосуточной работы.
	AllDay = "00:00-00:00"
	// DayOffText выводится вместо окна в выходной день.
	DayOffText = "Выходной"
)

var dayNamesRU = [7]string{
	"Понедельник",
	"Вторник",
	"Среда",
	"Четверг",
	"Пятница",
	"Суббота",
	"Воскресенье",
}

// Day описывает расписание на текущий день.
type Day struct {
	DayName string `json:"dayName"`
	Window  string `json:"window"`
	Closed  bool   `json:"isClosed"`
	Text    string `json:"text"`
}

// APIWeekday переводит день недели в нумерацию API, где 1 означает понедельник, а 7 воскресенье.
func APIWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

// DayName возвращает русское название дня по номеру API.
func DayName(apiDay int) string {
	idx := ((apiDay-1)%7 + 7) % 7
	return dayNamesRU[idx]
}

// Today выбирает окно работы на день now. Недельное расписание важнее строки schedule;
// если записи на сегодня нет, берётся первая запись.
func Today(schedules []model.WorkSchedule, fallback string, now time.Time) Day {
	apiDay := APIWeekday(now)
	day := Day{DayName: DayName(apiDay), Window: AllDay}

	if len(schedules) > 0 {
		item := schedules[0]
		for _, s := range schedules {
			if s.DayOfWeek == apiDay {
				item = s
				break
			}
		}

		if item.DayName != "" {
			day.DayName = item.DayName
		} else {
			day.DayName = DayName(item.DayOfWeek)
		}

		if item.Is24h {
			day.Window = AllDay
		} else {
			day.Closed = item.IsDayOff
			day.Window = clock(item.WorkStart) + "-" + clock(item.WorkEnd)
		}
	} else if strings.Contains(fallback, "-") {
		day.Window = fallback
	}

	day.Text = day.Window
	if day.Closed {
		day.Text = DayOffText
	}

	return day
}

func clock(v *string) string {
	if v == nil || *v == "" {
		return "00:00"
	}
	s := *v
	if len(s) > 5 {
		s = s[:5]
	}
	return s
}

// IsOutside сообщает, что момент now вне окна "HH:MM-HH:MM".
// Некорректное окно считается открытым, совпадающие границы означают круглосуточную работу,
// окно с концом раньше начала переходит через полночь.
func IsOutside(window string, now time.Time) bool {
	start, end, ok := parseWindow(window)
	if !ok {
		return false
	}

	current := now.Hour()*60 + now.Minute()

	switch {
	case start == end:
		return false
	case start < end:
		return !(current >= start && current < end)
	default:
		return !(current >= start || current < end)
	}
}

// IsOpen сообщает, принимает ли заведение заказы в момент now.
func IsOpen(venue model.Venue, now time.Time) bool {
	day := Today(venue.Schedules, venue.Schedule, now)
	return !day.Closed && !IsOutside(day.Window, now)
}

func parseWindow(window string) (int, int, bool) {
	startStr, endStr, found := strings.Cut(window, "-")
	if !found {
		return 0, 0, false
	}

	start, ok := parseClock(startStr)
	if !ok {
		return 0, 0, false
	}
	end, ok := parseClock(endStr)
	if !ok {
		return 0, 0, false
	}

	return start, end, true
}

func parseClock(s string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}

	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}

	return h*60 + m, true
}
