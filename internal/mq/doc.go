// Package mq реализует обмен сообщениями через RabbitMQ: события о
// сохранённых записях анализа для фоновой обработки, с DLQ для
// некорректных сообщений и автоматическим переподключением.
package mq
