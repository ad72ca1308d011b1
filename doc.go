// Package seqstream is a client SDK for a time-series data platform used in
// robotics and physical-AI recording workflows.
//
// Producers stream heterogeneous sensor records into named sequences
// partitioned by topics:
//
//	client := seqstream.NewClient(seqstream.WithBaseURL("https://recorder.example.com"))
//
//	seqstream.WithSequence(ctx, client, "drive-2026-07-31", seqstream.DefaultSequenceConfig(),
//		func(sw *seqstream.SequenceWriter) error {
//			tw, err := sw.TopicCreate(ctx, "/gps/fix", nil, gps.Tag)
//			if err != nil {
//				return err
//			}
//			return tw.Push(ctx, &gps.Fix{Lat: 37.1, Lon: -122.2}, 100, nil)
//		})
//
// Consumers retrieve either a single topic stream (TopicDataStreamer) or a
// chronologically merged view across all topics of a sequence
// (SequenceDataStreamer):
//
//	handler, _ := client.SequenceHandler(ctx, "drive-2026-07-31")
//	streamer, _ := handler.DataStreamer(ctx, false)
//	defer streamer.Close()
//
//	for {
//		topic, msg, err := streamer.Next(ctx)
//		if errors.Is(err, seqstream.Done) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		process(topic, msg)
//	}
//
// Sequences, topics, and ontology records can be filtered through a typed
// query facility in the sibling package seqstream/query.
package seqstream
