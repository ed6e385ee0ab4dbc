package graphstore

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"

	"github.com/transitcast/realtime-timetable/business/data/gtfs"
	"github.com/transitcast/realtime-timetable/foundation/database"
)

// CalendarService resolves which service ids run on a date, and maps
// service ids to the small integer codes TripTimes and ServiceCodeSet
// carry in place of the string, for one loaded DataSet. It implements the
// two calendar-shaped methods of gtfs.Graph; Graph holds one per DataSet.
//
// It also layers an observed-holiday blackout over calendar.txt/
// calendar_dates.txt: a service id registered with BlackoutOnHolidays
// doesn't run on a day the US federal holiday calendar observes, no matter
// what the calendar row says. There's no GTFS column for this, so the
// blackout set is configured by the caller rather than read from the feed.
type CalendarService struct {
	db       *sqlx.DB
	dataSet  *gtfs.DataSet
	holidays *cal.BusinessCalendar

	mu         sync.Mutex
	blackout   map[string]struct{}
	codes      map[string]int
	serviceIds map[int]string
	nextCode   int
}

// NewCalendarService builds a CalendarService for dataSet, observing the
// standard US federal holidays for blackout purposes.
func NewCalendarService(db *sqlx.DB, dataSet *gtfs.DataSet) *CalendarService {
	holidays := cal.NewBusinessCalendar()
	holidays.AddHoliday(
		us.NewYear,
		us.MlkDay,
		us.MemorialDay,
		us.IndependenceDay,
		us.LaborDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
		us.Juneteenth,
	)
	return &CalendarService{
		db:         db,
		dataSet:    dataSet,
		holidays:   holidays,
		blackout:   make(map[string]struct{}),
		codes:      make(map[string]int),
		serviceIds: make(map[int]string),
	}
}

// BlackoutOnHolidays registers serviceIds as not running on an observed
// holiday, overriding whatever calendar.txt/calendar_dates.txt says for
// that date.
func (c *CalendarService) BlackoutOnHolidays(serviceIds ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range serviceIds {
		c.blackout[id] = struct{}{}
	}
}

// ServiceIDsOnDate implements gtfs.Graph.
func (c *CalendarService) ServiceIDsOnDate(date time.Time) ([]string, error) {
	ids, err := GetActiveServiceIds(c.db, c.dataSet, date)
	if err != nil {
		return nil, err
	}

	_, observed, _ := c.holidays.IsHoliday(date)

	c.mu.Lock()
	defer c.mu.Unlock()
	return applyHolidayBlackout(ids, observed, c.blackout), nil
}

// applyHolidayBlackout drops any service id in blackout from ids when
// observed is true; otherwise ids passes through unchanged. Split out from
// ServiceIDsOnDate so the filtering rule can be tested without a database.
func applyHolidayBlackout(ids []string, observed bool, blackout map[string]struct{}) []string {
	if !observed || len(blackout) == 0 {
		return ids
	}
	filtered := ids[:0]
	for _, id := range ids {
		if _, blacked := blackout[id]; blacked {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}

// ServiceCode implements gtfs.Graph, interning serviceId to a stable small
// integer for the lifetime of the CalendarService.
func (c *CalendarService) ServiceCode(serviceId string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if code, ok := c.codes[serviceId]; ok {
		return code, nil
	}
	code := c.nextCode
	c.nextCode++
	c.codes[serviceId] = code
	c.serviceIds[code] = serviceId
	return code, nil
}

// ServiceIdForCode reverses ServiceCode, for logging a human-readable
// service id instead of its bitset position.
func (c *CalendarService) ServiceIdForCode(code int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.serviceIds[code]
	return id, ok
}

// GetActiveServiceIds retrieves the service ids active on serviceDate from
// dataSet's calendar and calendar_date rows: the calendar.txt weekday
// column, overlaid with calendar_dates.txt exceptions (exception_type 1
// adds a service id for the date, 2 removes it).
func GetActiveServiceIds(db *sqlx.DB, dataSet *gtfs.DataSet, serviceDate time.Time) ([]string, error) {
	active := make(map[string]bool)

	// the calendar weekday columns are named after the english weekdays
	weekday := strings.ToLower(serviceDate.Weekday().String())
	query := fmt.Sprintf("select service_id from calendar where data_set_id = $1 "+
		"and $2 between start_date and end_date "+
		"and %s = 1", weekday)
	var calendarServiceIds []string
	if err := db.Select(&calendarServiceIds, query, dataSet.Id, serviceDate); err != nil {
		return nil, fmt.Errorf("querying calendar table. query:%s error: %w", query, err)
	}
	for _, id := range calendarServiceIds {
		active[id] = true
	}

	query = "select * from calendar_date where data_set_id = :data_set_id and date = :date"
	rows, err := database.PrepareNamedQueryRowsFromMap(query, db, map[string]interface{}{
		"data_set_id": dataSet.Id,
		"date":        serviceDate,
	})
	if err != nil {
		return nil, fmt.Errorf("querying calendar_date table. query:%s error: %w", query, err)
	}
	defer func() {
		if rows != nil {
			_ = rows.Close()
		}
	}()

	var exceptions []gtfs.CalendarDate
	for rows.Next() {
		var exc gtfs.CalendarDate
		if err := rows.StructScan(&exc); err != nil {
			return nil, fmt.Errorf("scanning calendar_date row: %w", err)
		}
		exceptions = append(exceptions, exc)
	}
	for _, exc := range exceptions {
		switch exc.ExceptionType {
		case 1:
			active[exc.ServiceId] = true
		case 2:
			delete(active, exc.ServiceId)
		}
	}

	ids := make([]string, 0, len(active))
	for id, on := range active {
		if on {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
