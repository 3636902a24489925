package kafka

import (
	"encoding/json"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"

	"AreaLink/logger"
	"AreaLink/module/chat/model"
	"AreaLink/tools/safe"
)

// TopicMessages 消息归档主题：每条落库消息再异步写一份到 Kafka，
// 下游（搜索、审计）自行消费。发送失败只记日志，不影响主链路。
const TopicMessages = "al.messages"

// Archive 实现 chat.Archiver。
type Archive struct {
	client sarama.Client
	prod   sarama.AsyncProducer
}

// NewArchive 建客户端与异步生产者，并启动结果回收协程。
func NewArchive(brokers []string) (*Archive, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Partitioner = sarama.NewHashPartitioner // 同房间同分区，保顺序

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "kafka client")
	}
	prod, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "kafka async producer")
	}
	a := &Archive{client: client, prod: prod}

	safe.SafeGo(func() {
		for {
			select {
			case msg, ok := <-a.prod.Successes():
				if !ok {
					return
				}
				logger.Debugf("archive ok topic=%s partition=%d offset=%d", msg.Topic, msg.Partition, msg.Offset)
			case err, ok := <-a.prod.Errors():
				if !ok {
					return
				}
				logger.Errorf("archive send failed: %v", err)
			}
		}
	})
	return a, nil
}

// ArchiveMessage 按房间 key 异步投递一条消息。
func (a *Archive) ArchiveMessage(msg *model.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("archive marshal msg=%s: %v", msg.ID, err)
		return
	}
	a.prod.Input() <- &sarama.ProducerMessage{
		Topic: TopicMessages,
		Key:   sarama.StringEncoder(msg.RoomID),
		Value: sarama.ByteEncoder(data),
	}
}

// Close 关生产者再关客户端。
func (a *Archive) Close() {
	if a.prod != nil {
		a.prod.AsyncClose()
	}
	if a.client != nil {
		_ = a.client.Close()
	}
}
