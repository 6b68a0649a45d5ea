// Package ics renders calendar events as iCalendar documents for interchange
// with external calendar clients.
package ics

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/emersion/go-ical"

	"github.com/example/calendar-scheduler/internal/persistence"
)

const productID = "-//calendar-scheduler//EN"

// Encode renders the event and its participants as a single-event VCALENDAR.
// Display names come from the users map; unknown users fall back to their id.
func Encode(event persistence.CalendarEvent, participants []persistence.EventParticipant, users map[string]persistence.User) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, event.ID)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, event.UpdatedAt.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, event.End.UTC())
	ev.Props.SetText(ical.PropSummary, event.Title)
	ev.Props.SetText(ical.PropStatus, statusText(event.Status))

	organizer := ical.NewProp(ical.PropOrganizer)
	organizer.Value = userURI(event.OrganizerID)
	organizer.Params.Set(ical.ParamCommonName, displayName(users, event.OrganizerID))
	ev.Props.Add(organizer)

	for _, p := range participants {
		if p.Role == persistence.RoleOrganizer {
			continue
		}
		attendee := ical.NewProp(ical.PropAttendee)
		attendee.Value = userURI(p.UserID)
		attendee.Params.Set(ical.ParamCommonName, displayName(users, p.UserID))
		attendee.Params.Set(ical.ParamRole, roleText(p.Role))
		attendee.Params.Set(ical.ParamParticipationStatus, participationText(p.Status))
		ev.Props.Add(attendee)
	}

	cal.Children = append(cal.Children, ev.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("ics: encode event %s: %w", event.ID, err)
	}
	return buf.String(), nil
}

// statusText maps event statuses onto the three VEVENT status values.
func statusText(status persistence.EventStatus) string {
	switch status {
	case persistence.EventScheduled, persistence.EventInProgress, persistence.EventCompleted:
		return "CONFIRMED"
	case persistence.EventCancelled:
		return "CANCELLED"
	default:
		return "TENTATIVE"
	}
}

func roleText(role persistence.ParticipantRole) string {
	if role == persistence.RoleOptional {
		return "OPT-PARTICIPANT"
	}
	return "REQ-PARTICIPANT"
}

func participationText(status persistence.ParticipantStatus) string {
	switch status {
	case persistence.ParticipantAccepted:
		return "ACCEPTED"
	case persistence.ParticipantDeclined:
		return "DECLINED"
	case persistence.ParticipantTentative:
		return "TENTATIVE"
	default:
		return "NEEDS-ACTION"
	}
}

func userURI(userID string) string {
	return "urn:uuid:" + userID
}

func displayName(users map[string]persistence.User, userID string) string {
	if user, ok := users[userID]; ok && strings.TrimSpace(user.DisplayName) != "" {
		return user.DisplayName
	}
	return userID
}
