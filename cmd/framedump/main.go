// framedump 从pcap抓包中还原并打印助手协议的消息
package main

import (
	"flag"
	"fmt"
	"os"

	"smart_head/internal/capture"
)

func main() {
	file := flag.String("file", "", "pcap文件路径")
	port := flag.Uint("port", 5000, "处理服务端口")
	rate := flag.Int("rate", 16000, "PCM采样率，用于换算时长")
	maxSize := flag.Uint("max", 16<<20, "单条消息上限，超过视为失步")
	flag.Parse()

	if *file == "" && flag.NArg() > 0 {
		*file = flag.Arg(0)
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "用法: framedump -file capture.pcap [-port 5000] [-rate 16000]")
		os.Exit(2)
	}
	if *port == 0 || *port > 65535 {
		fmt.Fprintf(os.Stderr, "无效的端口: %d\n", *port)
		os.Exit(2)
	}

	frames, stats, err := capture.ReadFile(*file, uint16(*port), uint32(*maxSize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取抓包失败: %v\n", err)
		os.Exit(1)
	}

	for _, f := range frames {
		fmt.Println(capture.Describe(f, *rate))
	}
	fmt.Printf("\n数据包=%d 载荷段=%d 消息=%d 失步=%d\n", stats.Packets, stats.Segments, stats.Frames, stats.Resyncs)
}
