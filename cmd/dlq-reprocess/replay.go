package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/messaging/kafka"
)

// headerReplayedAt помечает команду, которую вернули из DLQ вручную.
const headerReplayedAt = "x-replayed-at"

type skipReason string

const (
	skipUndecodable      skipReason = "undecodable_letter"
	skipEmptyPayload     skipReason = "empty_payload"
	skipInvalidCommand   skipReason = "invalid_command"
	skipMissingCommandID skipReason = "missing_command_id"
	skipFilteredType     skipReason = "filtered_type"
	skipDuplicateCommand skipReason = "duplicate_command"
)

type publisher interface {
	PublishMessage(topic, key string, value []byte, headers map[string]string) error
}

type replayCandidate struct {
	topic   string
	key     string
	value   []byte
	command *kafka.OrderCommand
	cause   string
}

type report struct {
	scanned  int
	replayed map[kafka.CommandType]int
	skipped  map[skipReason]int
}

func (r report) total() int {
	n := 0
	for _, count := range r.replayed {
		n += count
	}
	return n
}

// replayer разбирает записи DLQ и возвращает команды в исходный топик.
// Одна и та же команда переигрывается не больше одного раза за запуск.
type replayer struct {
	defaultTopic string
	types        map[kafka.CommandType]struct{}
	publisher    publisher
	now          func() time.Time

	seen   map[string]struct{}
	report report
}

// newReplayer без publisher работает в режиме dry-run.
func newReplayer(defaultTopic string, types []kafka.CommandType, pub publisher) *replayer {
	r := &replayer{
		defaultTopic: defaultTopic,
		publisher:    pub,
		now:          time.Now,
		seen:         make(map[string]struct{}),
		report: report{
			replayed: make(map[kafka.CommandType]int),
			skipped:  make(map[skipReason]int),
		},
	}
	if len(types) > 0 {
		r.types = make(map[kafka.CommandType]struct{}, len(types))
		for _, t := range types {
			r.types[t] = struct{}{}
		}
	}
	return r
}

func (r *replayer) decide(msg *sarama.ConsumerMessage) (replayCandidate, skipReason, error) {
	var letter kafka.DeadLetter
	if err := json.Unmarshal(msg.Value, &letter); err != nil {
		return replayCandidate{}, skipUndecodable, err
	}
	if letter.OriginalValue == "" {
		return replayCandidate{}, skipEmptyPayload, nil
	}

	value := []byte(letter.OriginalValue)
	// Битая команда снова уйдёт в DLQ.
	cmd, err := kafka.ParseOrderCommand(&sarama.ConsumerMessage{Value: value})
	if err != nil {
		return replayCandidate{}, skipInvalidCommand, err
	}
	if strings.TrimSpace(cmd.CommandID) == "" {
		return replayCandidate{}, skipMissingCommandID, nil
	}
	if r.types != nil {
		if _, ok := r.types[cmd.Type]; !ok {
			return replayCandidate{}, skipFilteredType, nil
		}
	}
	if _, dup := r.seen[cmd.CommandID]; dup {
		return replayCandidate{}, skipDuplicateCommand, nil
	}

	topic := strings.TrimSpace(letter.OriginalTopic)
	if topic == "" {
		topic = r.defaultTopic
	}
	key := letter.OriginalKey
	if key == "" {
		key = cmd.Key()
	}

	return replayCandidate{
		topic:   topic,
		key:     key,
		value:   value,
		command: cmd,
		cause:   letter.ErrorMessage,
	}, "", nil
}

// handle обрабатывает одну запись DLQ. Ошибку возвращает только отказ публикации.
func (r *replayer) handle(msg *sarama.ConsumerMessage) error {
	r.report.scanned++

	candidate, reason, err := r.decide(msg)
	if reason != "" {
		r.report.skipped[reason]++
		entry := log.WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"reason":    reason,
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("dlq record skipped")
		return nil
	}

	cmd := candidate.command
	fields := log.Fields{
		"command_id": cmd.CommandID,
		"type":       cmd.Type,
		"topic":      candidate.topic,
		"key":        candidate.key,
		"cause":      candidate.cause,
	}

	if r.publisher != nil {
		headers := map[string]string{
			kafka.HeaderOriginalTopic: candidate.topic,
			headerReplayedAt:          r.now().UTC().Format(time.RFC3339),
		}
		if err := r.publisher.PublishMessage(candidate.topic, candidate.key, candidate.value, headers); err != nil {
			return fmt.Errorf("replay command %s: %w", cmd.CommandID, err)
		}
		log.WithFields(fields).Info("command replayed")
	} else {
		log.WithFields(fields).Info("replay candidate")
	}

	r.seen[cmd.CommandID] = struct{}{}
	r.report.replayed[cmd.Type]++
	return nil
}

func (r *replayer) logReport(mode string) {
	types := make([]string, 0, len(r.report.replayed))
	for t := range r.report.replayed {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		log.WithFields(log.Fields{
			"type":     t,
			"replayed": r.report.replayed[kafka.CommandType(t)],
		}).Info("replayed by command type")
	}

	fields := log.Fields{
		"mode":     mode,
		"scanned":  r.report.scanned,
		"replayed": r.report.total(),
	}
	for reason, count := range r.report.skipped {
		fields["skipped_"+string(reason)] = count
	}
	log.WithFields(fields).Info("dlq replay finished")
}
