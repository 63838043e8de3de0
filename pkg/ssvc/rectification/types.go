// SSVC Gateway
// Copyright (c) 2026 The SSVC Gateway Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of SSVC Gateway.
//
// SSVC Gateway is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SSVC Gateway is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SSVC Gateway.  If not, see <http://www.gnu.org/licenses/>.

// Package rectification follows the controller's distillation run from its
// telemetry: the run lifecycle, the stage history, collected volumes and
// the live metrics republished to the UI and MQTT.
package rectification

type Stage string

const (
	StageEmpty        Stage = "empty"
	StageWaiting      Stage = "waiting"
	StageTp1Waiting   Stage = "tp1_waiting"
	StageDelayedStart Stage = "delayed_start"
	StageHeads        Stage = "heads"
	StageLateHeads    Stage = "late_heads"
	StageHearts       Stage = "hearts"
	StageTails        Stage = "tails"
	StageSettings     Stage = "settings"
	StageError        Stage = "error"
)

var stageDescriptions = map[Stage]string{
	StageWaiting:      "Дежурный режим",
	StageTp1Waiting:   "Ожидание нагрева колонны",
	StageDelayedStart: "Отложенный старт",
	StageHeads:        "Головы",
	StageLateHeads:    "Подголовники",
	StageHearts:       "Тело",
	StageTails:        "Хвосты",
}

// ParseStage maps a telemetry "type" to a stage. Anything unknown is
// StageError.
func ParseStage(s string) Stage {
	switch st := Stage(s); st {
	case StageWaiting, StageTp1Waiting, StageDelayedStart, StageHeads,
		StageLateHeads, StageHearts, StageTails, StageSettings:
		return st
	default:
		return StageError
	}
}

// Description is the Russian display name, or the raw name when there is
// none.
func (s Stage) Description() string {
	if d, ok := stageDescriptions[s]; ok {
		return d
	}
	return string(s)
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateFinished State = "finished"
	StateSkipped  State = "skipped"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// historyRank orders stage states so history only moves forward.
func historyRank(s State) int {
	switch s {
	case StateRunning:
		return 1
	case StateFinished:
		return 2
	default:
		return 0
	}
}

type Event string

const (
	EventEmpty              Event = ""
	EventHeadsFinished      Event = "heads_finished"
	EventLateHeadsFinished  Event = "late_heads_finished"
	EventHeartsFinished     Event = "hearts_finished"
	EventTailsFinished      Event = "tails_finished"
	EventDsError            Event = "ds_error"
	EventDsErrorStop        Event = "ds_error_stop"
	EventStabilizationLimit Event = "stabilization_limit"
	EventRemoteStop         Event = "remote_stop"
	EventManuallyClosed     Event = "manually_closed"
	EventManuallyOpened     Event = "manually_opened"
	EventUnknown            Event = "unknown_event"
)

var eventDescriptions = map[Event]string{
	EventHeadsFinished:      "Завершен этап отбора голов",
	EventLateHeadsFinished:  "Завершен этап отбора подголовников",
	EventHeartsFinished:     "Завершен этап отбора тела",
	EventTailsFinished:      "Завершен этап отбора хвостов",
	EventDsError:            "Ошибка датчика температуры",
	EventDsErrorStop:        "Выключение оборудования (реле) из-за ошибки датчика. Срабатывает через 180 секунд, если ошибка текущего датчика не исчезнет.",
	EventStabilizationLimit: "Превышен лимит времени стабилизации",
	EventRemoteStop:         "Получена удаленная команда остановки, процесс остановлен",
	EventManuallyClosed:     "Включено ручное управление клапаном текущего этапа, клапан закрыт",
	EventManuallyOpened:     "Включено ручное управление клапаном текущего этапа, клапан открыт",
}

func ParseEvent(s string) Event {
	e := Event(s)
	if _, ok := eventDescriptions[e]; ok {
		return e
	}
	return EventUnknown
}

func (e Event) Description() string {
	if d, ok := eventDescriptions[e]; ok {
		return d
	}
	return "Неизвестное событие"
}

// finishedStage is the stage a *_finished event closes.
func (e Event) finishedStage() (Stage, bool) {
	switch e {
	case EventHeadsFinished:
		return StageHeads, true
	case EventLateHeadsFinished:
		return StageLateHeads, true
	case EventHeartsFinished:
		return StageHearts, true
	case EventTailsFinished:
		return StageTails, true
	default:
		return "", false
	}
}

func (e Event) pauses() bool {
	return e == EventManuallyClosed || e == EventManuallyOpened
}

func (e Event) sensorError() bool {
	return e == EventDsError || e == EventDsErrorStop
}
