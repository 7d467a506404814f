package sqlinline

const QStatsSummary = `--sql b7e445d0-1f3a-47c9-8a52-9e0d6c3b1f48
select
    count(*) filter (where event_type = 'SCAN')                                        as scans_total,
    count(*) filter (where event_type = 'CHAT')                                        as chats_total,
    count(*) filter (where success)                                                    as success_total,
    count(*) filter (where not success)                                                as fail_total,
    coalesce(sum(tokens), 0)                                                           as tokens_total,
    coalesce(sum(cost), 0)                                                             as credits_spent_total,
    count(*) filter (where created_at >= now() - interval '24 hours')                  as events_last_24h
from usage_events;
`
