package calendar

// FloorTenMinutes returns the first second of the ten minute slot containing instant
func FloorTenMinutes(instant int64) int64 {
	return instant - floorMod(instant, 10*secondsPerMinute)
}

// CeilTenMinutes returns the last second of the ten minute slot containing instant
func CeilTenMinutes(instant int64) int64 {
	return FloorTenMinutes(instant) + 10*secondsPerMinute - 1
}

// FloorHour returns the first second of the UTC hour containing instant
func FloorHour(instant int64) int64 {
	return instant - floorMod(instant, secondsPerHour)
}

// CeilHour returns the last second of the UTC hour containing instant
func CeilHour(instant int64) int64 {
	return FloorHour(instant) + secondsPerHour - 1
}

// FloorDay returns UTC midnight of the day containing instant
func FloorDay(instant int64) int64 {
	return instant - floorMod(instant, secondsPerDay)
}

// CeilDay returns the last second of the UTC day containing instant
func CeilDay(instant int64) int64 {
	return FloorDay(instant) + secondsPerDay - 1
}

// FloorWeek returns midnight of the Monday starting the week containing instant
func FloorWeek(instant int64) int64 {
	days := floorDiv(instant, secondsPerDay)
	// 1970-01-01 was a Thursday
	sinceMonday := floorMod(days+3, 7)
	return (days - sinceMonday) * secondsPerDay
}

// CeilWeek returns the last second of the week containing instant
func CeilWeek(instant int64) int64 {
	return FloorWeek(instant) + 7*secondsPerDay - 1
}

// FloorMonth returns midnight of the first day of the month containing instant
func FloorMonth(instant int64) int64 {
	year, month, _ := Date(instant)
	return daysFromCivil(year, month, 1) * secondsPerDay
}

// CeilMonth returns the last second of the month containing instant
func CeilMonth(instant int64) int64 {
	year, month, _ := Date(instant)
	if month == 12 {
		year, month = year+1, 1
	} else {
		month++
	}
	return daysFromCivil(year, month, 1)*secondsPerDay - 1
}
