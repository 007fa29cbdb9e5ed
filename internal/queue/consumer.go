// consumer.go contains the background consumer that listens to the
// admission.events queue and appends structured lines to
// logs/admission.log: the audit trail of offers granted, offers
// expired and tickets purchased.
package queue

import (
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// StartAdmissionConsumer connects to RabbitMQ, declares the durable
// admission.events queue, and starts consuming. Each message is
// appended to logs/admission.log in a single-line, human-friendly
// format. The function runs a reconnect loop with capped backoff and
// keeps running indefinitely; processing errors are logged and the
// offending message rejected so the server continues operating.
func StartAdmissionConsumer() error {
    url := BrokerURL()

    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Printf("admission-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            time.Sleep(backoff)
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        if err := consumeLoop(conn); err != nil {
            log.Printf("admission-consumer: consume loop ended: %v; reconnecting", err)
            time.Sleep(2 * time.Second)
            continue
        }
    }
}

func consumeLoop(conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("admission-consumer: set QoS failed: %v", err)
    }

    _, err = ch.QueueDeclare(admissionQueueName, true, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(admissionQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := handleMessage(d.Body); err != nil {
            log.Printf("admission-consumer: handle message failed: %v", err)
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

func handleMessage(body []byte) error {
    var ev AdmissionEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if err := os.MkdirAll("logs", 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    fpath := filepath.Join("logs", "admission.log")
    f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    line := fmt.Sprintf("[%s] %s | event_id=%d | user_id=%s | entry_id=%d", ev.OccurredAt, ev.Kind, ev.EventID, ev.UserID, ev.QueueEntryID)
    if ev.TicketID != 0 {
        line += fmt.Sprintf(" | ticket_id=%d", ev.TicketID)
    }
    if ev.OfferExpiresAt != "" {
        line += fmt.Sprintf(" | offer_expires_at=%s", ev.OfferExpiresAt)
    }
    line += "\n"

    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}
