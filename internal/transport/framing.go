// Package transport 实现基于长度前缀的双工消息通道
//
// 线上格式: Message := uint32_BE length ++ byte[length] payload
// 长度为0的消息是合法的空消息，接收方不会再读取消息体。
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize 长度前缀字节数
const HeaderSize = 4

var (
	// ErrClosed 对端关闭或连接出错，读取未能凑满请求的字节数
	ErrClosed = errors.New("连接已关闭")
	// ErrMessageTooLarge 长度前缀超出允许的上限，属于协议错误
	ErrMessageTooLarge = errors.New("消息长度超出限制")
	// ErrShortWrite 写入的字节数少于消息长度
	ErrShortWrite = errors.New("消息未完整写入")
)

// EncodeMessage 编码一条完整的消息（长度前缀 + 负载）
func EncodeMessage(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// SendMessage 写出一条消息，前缀和负载通过一次写调用发出
func SendMessage(w io.Writer, payload []byte) error {
	buf := EncodeMessage(payload)
	n, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("发送消息失败: %w", err)
	}
	if n != len(buf) {
		return ErrShortWrite
	}
	return nil
}

// RecvExact 读取恰好n个字节；对端提前关闭或读取出错时返回 ErrClosed，不返回部分数据
func RecvExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return buf, nil
}

// RecvMessage 读取一条消息，maxSize为0表示不限制长度
func RecvMessage(r io.Reader, maxSize uint32) ([]byte, error) {
	header, err := RecvExact(r, HeaderSize)
	if err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header)
	if maxSize > 0 && length > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, maxSize)
	}
	return RecvExact(r, int(length))
}
