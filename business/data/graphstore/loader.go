package graphstore

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/transitcast/realtime-timetable/business/data/gtfs"
)

// batchSize is how many rows each row reader buffers before flushing to the
// database in one batched insert.
const batchSize = 250

// csvParser reads one GTFS csv file row by row, with typed column
// accessors modeled on the static loader's own conventions. Column errors
// accumulate across a row rather than aborting on the first bad value, so
// err reports everything wrong with a row at once.
type csvParser struct {
	filename string
	line     int
	reader   *csv.Reader
	headers  []string
	record   []string
	errors   []error
}

func newCSVParser(r io.Reader, filename string) (*csvParser, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", filename, err)
	}
	stripBOM(headers)
	return &csvParser{filename: filename, line: 1, reader: reader, headers: headers, record: headers}, nil
}

// stripBOM removes a UTF-8 byte-order mark from the first header, which
// several GTFS publishers emit despite the spec calling for plain UTF-8.
func stripBOM(headers []string) {
	if len(headers) == 0 || len(headers[0]) == 0 {
		return
	}
	runes := []rune(headers[0])
	if runes[0] == '﻿' {
		headers[0] = string(runes[1:])
	}
}

func (p *csvParser) nextLine() error {
	var err error
	p.record, err = p.reader.Read()
	p.line++
	return err
}

func (p *csvParser) indexOf(name string) int {
	for i, h := range p.headers {
		if h == name {
			return i
		}
	}
	return -1
}

func (p *csvParser) raw(name string, optional bool) *string {
	idx := p.indexOf(name)
	if idx < 0 {
		if !optional {
			p.errors = append(p.errors, fmt.Errorf("missing column %q", name))
		}
		return nil
	}
	if idx >= len(p.record) {
		if optional {
			return nil
		}
		p.errors = append(p.errors, fmt.Errorf("row too short for column %q", name))
		return nil
	}
	v := p.record[idx]
	if v == "" {
		if optional {
			return nil
		}
		p.errors = append(p.errors, fmt.Errorf("empty required column %q", name))
		return nil
	}
	return &v
}

func (p *csvParser) str(name string, optional bool) string {
	if v := p.raw(name, optional); v != nil {
		return *v
	}
	return ""
}

func (p *csvParser) strPtr(name string) *string {
	return p.raw(name, true)
}

func (p *csvParser) intVal(name string, optional bool) int {
	v := p.raw(name, optional)
	if v == nil {
		return 0
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		p.errors = append(p.errors, fmt.Errorf("column %q: %w", name, err))
		return 0
	}
	return n
}

func (p *csvParser) intPtr(name string) *int {
	v := p.raw(name, true)
	if v == nil {
		return nil
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		p.errors = append(p.errors, fmt.Errorf("column %q: %w", name, err))
		return nil
	}
	return &n
}

func (p *csvParser) float64Val(name string, optional bool) float64 {
	v := p.raw(name, optional)
	if v == nil {
		return 0
	}
	f, err := strconv.ParseFloat(*v, 64)
	if err != nil {
		p.errors = append(p.errors, fmt.Errorf("column %q: %w", name, err))
		return 0
	}
	return f
}

func (p *csvParser) float64Ptr(name string) *float64 {
	v := p.raw(name, true)
	if v == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*v, 64)
	if err != nil {
		p.errors = append(p.errors, fmt.Errorf("column %q: %w", name, err))
		return nil
	}
	return &f
}

// gtfsDate parses a service day in the GTFS YYYYMMDD format.
func (p *csvParser) gtfsDate(name string, optional bool) *time.Time {
	v := p.raw(name, optional)
	if v == nil {
		return nil
	}
	t, err := time.Parse("20060102", *v)
	if err != nil {
		p.errors = append(p.errors, fmt.Errorf("column %q: %w", name, err))
		return nil
	}
	return &t
}

// gtfsTime parses an HH:MM:SS time of day measured from noon-minus-12h of
// the service day, permitting values past 24:00:00 for trips running past
// midnight, per the GTFS stop_times.txt convention.
func (p *csvParser) gtfsTime(name string, optional bool) int {
	v := p.raw(name, optional)
	if v == nil {
		return 0
	}
	parts := strings.Split(strings.TrimSpace(*v), ":")
	if len(parts) != 3 {
		p.errors = append(p.errors, fmt.Errorf("column %q: expected HH:MM:SS, got %q", name, *v))
		return 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		p.errors = append(p.errors, fmt.Errorf("column %q: malformed time %q", name, *v))
		return 0
	}
	return h*3600 + m*60 + s
}

func (p *csvParser) err() error {
	if len(p.errors) == 0 {
		return nil
	}
	err := fmt.Errorf("%s line %d: %v", p.filename, p.line, p.errors)
	p.errors = nil
	return err
}

// rowReader reads rows out of a csvParser and batches them into the
// database, flushing any partial batch once the file is exhausted.
type rowReader interface {
	addRow(p *csvParser, dsTx *gtfs.DataSetTransaction) error
	flush(dsTx *gtfs.DataSetTransaction) error
}

func loadRows(dsTx *gtfs.DataSetTransaction, p *csvParser, r rowReader) error {
	for {
		err := p.nextLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := r.addRow(p, dsTx); err != nil {
			return fmt.Errorf("%s line %d: %w", p.filename, p.line, err)
		}
	}
	return r.flush(dsTx)
}

func buildStop(p *csvParser) (*gtfs.Stop, error) {
	stop := &gtfs.Stop{
		StopId:    p.str("stop_id", false),
		StopCode:  p.str("stop_code", true),
		StopName:  p.str("stop_name", true),
		Latitude:  p.float64Val("stop_lat", true),
		Longitude: p.float64Val("stop_lon", true),
	}
	return stop, p.err()
}

type stopRowReader struct{ batch []*gtfs.Stop }

func (r *stopRowReader) addRow(p *csvParser, dsTx *gtfs.DataSetTransaction) error {
	stop, err := buildStop(p)
	if err != nil {
		return err
	}
	r.batch = append(r.batch, stop)
	if len(r.batch) >= batchSize {
		return r.flush(dsTx)
	}
	return nil
}

func (r *stopRowReader) flush(dsTx *gtfs.DataSetTransaction) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := gtfs.RecordStops(r.batch, dsTx); err != nil {
		return err
	}
	r.batch = nil
	return nil
}

func buildRoute(p *csvParser) (*gtfs.Route, error) {
	route := &gtfs.Route{
		RouteId:   p.str("route_id", false),
		AgencyId:  p.str("agency_id", true),
		ShortName: p.str("route_short_name", true),
		LongName:  p.str("route_long_name", true),
		Modality:  p.intVal("route_type", false),
	}
	return route, p.err()
}

type routeRowReader struct{ batch []*gtfs.Route }

func (r *routeRowReader) addRow(p *csvParser, dsTx *gtfs.DataSetTransaction) error {
	route, err := buildRoute(p)
	if err != nil {
		return err
	}
	r.batch = append(r.batch, route)
	if len(r.batch) >= batchSize {
		return r.flush(dsTx)
	}
	return nil
}

func (r *routeRowReader) flush(dsTx *gtfs.DataSetTransaction) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := gtfs.RecordRoutes(r.batch, dsTx); err != nil {
		return err
	}
	r.batch = nil
	return nil
}

func buildCalendar(p *csvParser) (*gtfs.Calendar, error) {
	cal := &gtfs.Calendar{
		ServiceId: p.str("service_id", false),
		Monday:    p.intVal("monday", false),
		Tuesday:   p.intVal("tuesday", false),
		Wednesday: p.intVal("wednesday", false),
		Thursday:  p.intVal("thursday", false),
		Friday:    p.intVal("friday", false),
		Saturday:  p.intVal("saturday", false),
		Sunday:    p.intVal("sunday", false),
		StartDate: p.gtfsDate("start_date", false),
		EndDate:   p.gtfsDate("end_date", false),
	}
	return cal, p.err()
}

type calendarRowReader struct{ batch []*gtfs.Calendar }

func (r *calendarRowReader) addRow(p *csvParser, dsTx *gtfs.DataSetTransaction) error {
	cal, err := buildCalendar(p)
	if err != nil {
		return err
	}
	r.batch = append(r.batch, cal)
	if len(r.batch) >= batchSize {
		return r.flush(dsTx)
	}
	return nil
}

func (r *calendarRowReader) flush(dsTx *gtfs.DataSetTransaction) error {
	for _, c := range r.batch {
		if err := gtfs.RecordCalendar(c, dsTx); err != nil {
			return err
		}
	}
	r.batch = nil
	return nil
}

func buildCalendarDate(p *csvParser) (*gtfs.CalendarDate, error) {
	serviceId := p.str("service_id", false)
	date := p.gtfsDate("date", false)
	exceptionType := p.intVal("exception_type", false)
	if err := p.err(); err != nil {
		return nil, err
	}
	return &gtfs.CalendarDate{
		ServiceId:     serviceId,
		Date:          *date,
		ExceptionType: exceptionType,
	}, nil
}

type calendarDateRowReader struct{ batch []*gtfs.CalendarDate }

func (r *calendarDateRowReader) addRow(p *csvParser, dsTx *gtfs.DataSetTransaction) error {
	date, err := buildCalendarDate(p)
	if err != nil {
		return err
	}
	r.batch = append(r.batch, date)
	if len(r.batch) >= batchSize {
		return r.flush(dsTx)
	}
	return nil
}

func (r *calendarDateRowReader) flush(dsTx *gtfs.DataSetTransaction) error {
	for _, d := range r.batch {
		if err := gtfs.RecordCalendarDate(d, dsTx); err != nil {
			return err
		}
	}
	r.batch = nil
	return nil
}

func buildShape(p *csvParser) (*gtfs.Shape, error) {
	shape := &gtfs.Shape{
		ShapeId:           p.str("shape_id", false),
		ShapePtLat:        p.float64Val("shape_pt_lat", false),
		ShapePtLng:        p.float64Val("shape_pt_lon", false),
		ShapePtSequence:   p.intVal("shape_pt_sequence", false),
		ShapeDistTraveled: p.float64Ptr("shape_dist_traveled"),
	}
	return shape, p.err()
}

type shapeRowReader struct{ batch []*gtfs.Shape }

func (r *shapeRowReader) addRow(p *csvParser, dsTx *gtfs.DataSetTransaction) error {
	shape, err := buildShape(p)
	if err != nil {
		return err
	}
	r.batch = append(r.batch, shape)
	if len(r.batch) >= batchSize {
		return r.flush(dsTx)
	}
	return nil
}

func (r *shapeRowReader) flush(dsTx *gtfs.DataSetTransaction) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := gtfs.RecordShapes(r.batch, dsTx); err != nil {
		return err
	}
	r.batch = nil
	return nil
}

func buildTrip(p *csvParser) (*gtfs.Trip, error) {
	trip := &gtfs.Trip{
		TripId:        p.str("trip_id", false),
		RouteId:       p.str("route_id", false),
		ServiceId:     p.str("service_id", false),
		TripHeadsign:  p.strPtr("trip_headsign"),
		TripShortName: p.strPtr("trip_short_name"),
		BlockId:       p.strPtr("block_id"),
		DirectionId:   p.intPtr("direction_id"),
	}
	return trip, p.err()
}

type tripRowReader struct{ batch []*gtfs.Trip }

func (r *tripRowReader) addRow(p *csvParser, dsTx *gtfs.DataSetTransaction) error {
	trip, err := buildTrip(p)
	if err != nil {
		return err
	}
	r.batch = append(r.batch, trip)
	if len(r.batch) >= batchSize {
		return r.flush(dsTx)
	}
	return nil
}

func (r *tripRowReader) flush(dsTx *gtfs.DataSetTransaction) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := gtfs.RecordTrips(r.batch, dsTx); err != nil {
		return err
	}
	r.batch = nil
	return nil
}

func buildStopTime(p *csvParser) (*gtfs.StopTimeRow, error) {
	row := &gtfs.StopTimeRow{
		TripId:            p.str("trip_id", false),
		StopSequence:      p.intVal("stop_sequence", false),
		StopId:            p.str("stop_id", false),
		ArrivalTime:       p.gtfsTime("arrival_time", true),
		DepartureTime:     p.gtfsTime("departure_time", true),
		PickupType:        p.intVal("pickup_type", true),
		DropOffType:       p.intVal("drop_off_type", true),
		Timepoint:         p.intVal("timepoint", true),
		ShapeDistTraveled: p.float64Ptr("shape_dist_traveled"),
	}
	return row, p.err()
}

type stopTimeRowReader struct{ batch []*gtfs.StopTimeRow }

func (r *stopTimeRowReader) addRow(p *csvParser, dsTx *gtfs.DataSetTransaction) error {
	row, err := buildStopTime(p)
	if err != nil {
		return err
	}
	r.batch = append(r.batch, row)
	if len(r.batch) >= batchSize {
		return r.flush(dsTx)
	}
	return nil
}

func (r *stopTimeRowReader) flush(dsTx *gtfs.DataSetTransaction) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := gtfs.RecordStopTimes(r.batch, dsTx); err != nil {
		return err
	}
	r.batch = nil
	return nil
}

// staticFiles holds the zip entries LoadStaticGraph knows how to read.
// calendar_dates.txt and shapes.txt are optional; everything else is
// required for the snapshot engine to have a usable graph.
type staticFiles struct {
	stops         *zip.File
	routes        *zip.File
	calendar      *zip.File
	calendarDates *zip.File
	trips         *zip.File
	stopTimes     *zip.File
	shapes        *zip.File
}

func findStaticFiles(r *zip.ReadCloser) (*staticFiles, error) {
	files := staticFiles{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch f.Name {
		case "stops.txt":
			files.stops = f
		case "routes.txt":
			files.routes = f
		case "calendar.txt":
			files.calendar = f
		case "calendar_dates.txt":
			files.calendarDates = f
		case "trips.txt":
			files.trips = f
		case "stop_times.txt":
			files.stopTimes = f
		case "shapes.txt":
			files.shapes = f
		}
	}
	var missing []string
	if files.stops == nil {
		missing = append(missing, "stops.txt")
	}
	if files.routes == nil {
		missing = append(missing, "routes.txt")
	}
	if files.calendar == nil {
		missing = append(missing, "calendar.txt")
	}
	if files.trips == nil {
		missing = append(missing, "trips.txt")
	}
	if files.stopTimes == nil {
		missing = append(missing, "stop_times.txt")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("gtfs zip file is missing required file(s): %s", strings.Join(missing, ", "))
	}
	return &files, nil
}

func loadFile(dsTx *gtfs.DataSetTransaction, f *zip.File, r rowReader) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	parser, err := newCSVParser(rc, f.Name)
	if err != nil {
		return err
	}
	return loadRows(dsTx, parser, r)
}

// LoadStaticGraph reads a GTFS static feed zip file at localZipPath and
// records every stop, route, calendar, calendar exception, shape point,
// trip, and stop time into dsTx's DataSet. Order among these files doesn't
// matter to the loader itself: unlike a validating consumer, it neither
// joins trips against stop_times while loading nor computes any derived
// trip column, so each file can be recorded independently.
func LoadStaticGraph(logger *log.Logger, dsTx *gtfs.DataSetTransaction, localZipPath string) error {
	zr, err := zip.OpenReader(localZipPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localZipPath, err)
	}
	defer func() {
		if err := zr.Close(); err != nil && logger != nil {
			logger.Printf("WARNING : graphstore : closing zip file %s: %v", localZipPath, err)
		}
	}()

	files, err := findStaticFiles(&zr.ReadCloser)
	if err != nil {
		return err
	}

	loaders := []struct {
		file   *zip.File
		reader rowReader
	}{
		{files.stops, &stopRowReader{}},
		{files.routes, &routeRowReader{}},
		{files.calendar, &calendarRowReader{}},
		{files.calendarDates, &calendarDateRowReader{}},
		{files.shapes, &shapeRowReader{}},
		{files.stopTimes, &stopTimeRowReader{}},
		{files.trips, &tripRowReader{}},
	}
	for _, l := range loaders {
		if l.file == nil {
			continue
		}
		start := time.Now()
		if err := loadFile(dsTx, l.file, l.reader); err != nil {
			return fmt.Errorf("loading %s: %w", l.file.Name, err)
		}
		if logger != nil {
			logger.Printf("loaded %s in %s", l.file.Name, time.Since(start))
		}
	}
	return nil
}
