package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// window задаёт диапазон смещений [from, to) одной партиции DLQ.
type window struct {
	partition int32
	from      int64
	to        int64
}

func (w window) size() int64 { return w.to - w.from }

type offsetClient interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

type recordStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type streamSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (recordStream, error)
}

type saramaStreams struct {
	consumer sarama.Consumer
}

func (s saramaStreams) ConsumePartition(topic string, partition int32, offset int64) (recordStream, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

// planWindows распределяет limit записей по партициям в порядке их номеров.
// С fromNewest окно каждой партиции прижимается к её концу.
func planWindows(client offsetClient, topic string, limit int, fromNewest bool) ([]window, error) {
	partitions, err := client.Partitions(topic)
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", topic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	budget := int64(limit)
	windows := make([]window, 0, len(partitions))
	for _, partition := range partitions {
		if budget == 0 {
			break
		}

		oldest, err := client.GetOffset(topic, partition, sarama.OffsetOldest)
		if err != nil {
			return nil, fmt.Errorf("oldest offset of %s/%d: %w", topic, partition, err)
		}
		newest, err := client.GetOffset(topic, partition, sarama.OffsetNewest)
		if err != nil {
			return nil, fmt.Errorf("newest offset of %s/%d: %w", topic, partition, err)
		}
		if newest <= oldest {
			continue
		}

		w := window{partition: partition, from: oldest, to: newest}
		if w.size() > budget {
			if fromNewest {
				w.from = w.to - budget
			} else {
				w.to = w.from + budget
			}
		}
		budget -= w.size()
		windows = append(windows, w)
	}
	return windows, nil
}

// readWindow передаёт записи окна в visit. По idle-таймауту чтение заканчивается
// досрочно: в компактированном топике часть смещений окна может отсутствовать.
func readWindow(
	ctx context.Context,
	source streamSource,
	topic string,
	w window,
	idle time.Duration,
	visit func(*sarama.ConsumerMessage) error,
) error {
	stream, err := source.ConsumePartition(topic, w.partition, w.from)
	if err != nil {
		return fmt.Errorf("consume %s/%d from %d: %w", topic, w.partition, w.from, err)
	}
	defer func() { _ = stream.Close() }()

	messages, errs := stream.Messages(), stream.Errors()
	idleTimer := time.NewTimer(idle)
	defer idleTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idleTimer.C:
			log.WithFields(log.Fields{
				"partition": w.partition,
				"window_to": w.to,
			}).Warn("partition went idle before window end")
			return nil
		case consumeErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return fmt.Errorf("read %s/%d: %w", topic, w.partition, consumeErr)
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if msg.Offset >= w.to {
				return nil
			}
			if err := visit(msg); err != nil {
				return err
			}
			if msg.Offset+1 >= w.to {
				return nil
			}
			idleTimer.Reset(idle)
		}
	}
}
